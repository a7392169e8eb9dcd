package util

import (
	"context"
	"strings"

	"github.com/ValentinKolb/dMap/rpc/client"
	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, common.DefaultTimeoutSecond, WrapString("The timeout in seconds of a single request"))

	key = "ready-timeout"
	cmd.PersistentFlags().Int(key, common.DefaultReadyTimeoutMillis, WrapString("How long the event stream waits for the connection to become ready (in milliseconds)"))

	key = "endpoints"
	cmd.PersistentFlags().String(key, "localhost:1408", WrapString("The address of the proxy. Multiple endpoints can be specified as a comma-separated list and are used round robin. Unix sockets are given as unix:///path/to/socket"))

	key = "scope"
	cmd.PersistentFlags().String(key, "", WrapString("Optional scope prefix of the cache service"))

	key = "compression"
	cmd.PersistentFlags().Bool(key, false, WrapString("Whether to compress messages with zstd"))

	key = "keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("Interval of gRPC keepalive pings (in seconds, 0 disables them)"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp endpoints)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The TCP keepalive interval (in seconds, only for tcp endpoints)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, only for tcp endpoints)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dmap")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := &common.ClientConfig{
		Endpoints:          strings.Split(viper.GetString("endpoints"), ","),
		TimeoutSecond:      viper.GetInt("timeout"),
		ReadyTimeoutMillis: viper.GetInt("ready-timeout"),
		Format:             viper.GetString("format"),
		Scope:              viper.GetString("scope"),
		LogLevel:           viper.GetString("log-level"),
		Transport: common.ClientTransportConfig{
			Compression:      viper.GetBool("compression"),
			KeepaliveTimeSec: viper.GetInt("keepalive"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}

	return conf
}

// NewSession installs the loggers and connects a session with the configuration from viper.
// The transport is chosen from the endpoints (unix sockets or tcp). It fails if the proxy is
// not reachable within ctx and the ready timeout.
func NewSession(ctx context.Context) (*client.Session, error) {
	config := GetClientConfig()
	if err := common.InitLoggers(config.LogLevel); err != nil {
		return nil, err
	}
	return client.NewSession(ctx, *config, client.WithWaitForReady())
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/dMap/cmd/util"
	"github.com/ValentinKolb/dMap/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	session  *client.Session
	namedMap *client.NamedMap[string, any]

	// MapCommands represents the named map command group
	MapCommands = &cobra.Command{
		Use:                "map",
		Short:              "Perform operations on a named map of the cache",
		PersistentPreRunE:  setupMapClient,
		PersistentPostRunE: closeMapClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the map command
	util.SetupRPCClientFlags(MapCommands)

	MapCommands.PersistentFlags().String("map", "default", util.WrapString("Name of the map to operate on"))

	// Add subcommands
	MapCommands.AddCommand(getCmd)
	MapCommands.AddCommand(putCmd)
	MapCommands.AddCommand(putIfAbsentCmd)
	MapCommands.AddCommand(removeCmd)
	MapCommands.AddCommand(hasCmd)
	MapCommands.AddCommand(sizeCmd)
	MapCommands.AddCommand(clearCmd)
	MapCommands.AddCommand(truncateCmd)
	MapCommands.AddCommand(destroyCmd)
	MapCommands.AddCommand(keysCmd)
	MapCommands.AddCommand(entriesCmd)
	MapCommands.AddCommand(listenCmd)
	MapCommands.AddCommand(perfTestCmd)
}

// setupMapClient connects the session and opens the map selected with --map
func setupMapClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), readyTimeout())
	defer cancel()

	var err error
	if session, err = util.NewSession(ctx); err != nil {
		return err
	}

	namedMap, err = client.GetNamedMap[string, any](session, viper.GetString("map"))
	return err
}

// closeMapClient releases the map and closes the session
func closeMapClient(_ *cobra.Command, _ []string) error {
	if session == nil {
		return nil
	}
	return session.Close()
}

// readyTimeout is the time allowed for connecting, the ready timeout of the config or its default
func readyTimeout() time.Duration {
	config := util.GetClientConfig().Defaults()
	return config.ReadyTimeout()
}

// requestContext returns the context of a single command line request
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	config := util.GetClientConfig().Defaults()
	return context.WithTimeout(cmd.Context(), config.RequestTimeout())
}

// parseValue reads a command line value as JSON and falls back to the plain string
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// formatValue renders a value for terminal output
func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default values applied by ClientConfig.Defaults
const (
	DefaultTimeoutSecond       = 30
	DefaultReadyTimeoutMillis  = 30_000
	DefaultFormat              = "json"
	DefaultEventQueueSize      = 1024
	DefaultKeepaliveTimeoutSec = 3
	DefaultMaxMessageSizeMB    = 64
)

// --------------------------------------------------------------------------
// Client configuration structs
// --------------------------------------------------------------------------

// SocketConf holds socket buffer sizes in bytes (0 = OS default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ClientTransportConfig holds the settings of the gRPC channel
type ClientTransportConfig struct {
	Compression bool
	// KeepaliveTimeSec enables gRPC keepalive pings (0 = disabled). Proxies reject
	// pings more frequent than their enforcement policy allows.
	KeepaliveTimeSec    int
	KeepaliveTimeoutSec int
	MaxMessageSizeMB    int
	SocketConf
	TCPConf
}

// ClientConfig holds all configuration parameters of a session.
type ClientConfig struct {
	// Endpoints of the proxy. More than one endpoint enables round-robin balancing.
	Endpoints []string

	// TimeoutSecond is the default deadline of every request without its own deadline
	TimeoutSecond int
	// ReadyTimeoutMillis bounds how long the event stream waits for the channel to become ready
	ReadyTimeoutMillis int

	// Format of the serializer used for keys, values and filters (json, msgpack, gob)
	Format string
	// Scope is an optional prefix for the cache service on the proxy
	Scope string

	// EventQueueSize is the number of undelivered events of a map that triggers a slow listener warning
	EventQueueSize int

	// Logging configuration
	LogLevel string

	Transport ClientTransportConfig
}

// Defaults returns a copy of the configuration with every unset field set to its default
func (c ClientConfig) Defaults() ClientConfig {
	if c.TimeoutSecond <= 0 {
		c.TimeoutSecond = DefaultTimeoutSecond
	}
	if c.ReadyTimeoutMillis <= 0 {
		c.ReadyTimeoutMillis = DefaultReadyTimeoutMillis
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = DefaultEventQueueSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Transport.KeepaliveTimeSec > 0 && c.Transport.KeepaliveTimeoutSec <= 0 {
		c.Transport.KeepaliveTimeoutSec = DefaultKeepaliveTimeoutSec
	}
	if c.Transport.MaxMessageSizeMB <= 0 {
		c.Transport.MaxMessageSizeMB = DefaultMaxMessageSizeMB
	}
	return c
}

// Validate checks the configuration for values that can not work
func (c *ClientConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	for i, endpoint := range c.Endpoints {
		if strings.TrimSpace(endpoint) == "" {
			return fmt.Errorf("endpoint %d is empty", i)
		}
	}
	if c.TimeoutSecond < 0 || c.ReadyTimeoutMillis < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); c.LogLevel != "" && err != nil {
		return err
	}
	return nil
}

// RequestTimeout returns TimeoutSecond as a duration
func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// ReadyTimeout returns ReadyTimeoutMillis as a duration
func (c *ClientConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutMillis) * time.Millisecond
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Ready Timeout", fmt.Sprintf("%d ms", c.ReadyTimeoutMillis))
	addField("Format", c.Format)
	addField("Scope", c.Scope)
	addField("Event Queue Size", strconv.Itoa(c.EventQueueSize))
	addField("Log Level", c.LogLevel)

	// Transport
	addSection("Transport")
	addField("Compression", strconv.FormatBool(c.Transport.Compression))
	addField("Keepalive", fmt.Sprintf("%d sec (timeout %d sec)", c.Transport.KeepaliveTimeSec, c.Transport.KeepaliveTimeoutSec))
	addField("Max Message Size", fmt.Sprintf("%d MB", c.Transport.MaxMessageSizeMB))
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

package common

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	conf := ClientConfig{Endpoints: []string{"localhost:1408"}}.Defaults()

	assert.Equal(t, DefaultTimeoutSecond, conf.TimeoutSecond)
	assert.Equal(t, DefaultReadyTimeoutMillis, conf.ReadyTimeoutMillis)
	assert.Equal(t, DefaultFormat, conf.Format)
	assert.Equal(t, DefaultEventQueueSize, conf.EventQueueSize)
	assert.Equal(t, "info", conf.LogLevel)
	assert.Equal(t, DefaultMaxMessageSizeMB, conf.Transport.MaxMessageSizeMB)
	assert.Zero(t, conf.Transport.KeepaliveTimeoutSec, "keepalive timeout only defaults with keepalive enabled")

	assert.Equal(t, 30*time.Second, conf.RequestTimeout())
	assert.Equal(t, 30*time.Second, conf.ReadyTimeout())
}

func TestConfigDefaultsKeepSetValues(t *testing.T) {
	conf := ClientConfig{
		TimeoutSecond:      2,
		ReadyTimeoutMillis: 150,
		Format:             "msgpack",
		LogLevel:           "debug",
		Transport:          ClientTransportConfig{KeepaliveTimeSec: 10},
	}.Defaults()

	assert.Equal(t, 2, conf.TimeoutSecond)
	assert.Equal(t, 150*time.Millisecond, conf.ReadyTimeout())
	assert.Equal(t, "msgpack", conf.Format)
	assert.Equal(t, "debug", conf.LogLevel)
	assert.Equal(t, DefaultKeepaliveTimeoutSec, conf.Transport.KeepaliveTimeoutSec)
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]struct {
		conf    ClientConfig
		wantErr bool
	}{
		"valid":          {ClientConfig{Endpoints: []string{"a:1", "b:1"}}, false},
		"no endpoints":   {ClientConfig{}, true},
		"empty endpoint": {ClientConfig{Endpoints: []string{"a:1", " "}}, true},
		"negative":       {ClientConfig{Endpoints: []string{"a:1"}, TimeoutSecond: -1}, true},
		"bad log level":  {ClientConfig{Endpoints: []string{"a:1"}, LogLevel: "loud"}, true},
		"warn level":     {ClientConfig{Endpoints: []string{"a:1"}, LogLevel: "warn"}, false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.conf.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	conf := ClientConfig{Endpoints: []string{"host-a:1408", "host-b:1408"}, Scope: "tenant"}.Defaults()
	out := conf.String()

	for _, want := range []string{"CLIENT CONFIGURATION", "TRANSPORT", "ENDPOINTS", "host-a:1408", "host-b:1408", "tenant", "json"} {
		assert.True(t, strings.Contains(out, want), "missing %q in\n%s", want, out)
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", "INFO"} {
		_, err := ParseLogLevel(level)
		require.NoError(t, err, level)
	}
	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}

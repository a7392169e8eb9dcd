package unix

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointParsing(t *testing.T) {
	tests := map[string]struct {
		endpoint string
		isUnix   bool
		path     string
	}{
		"triple slash": {"unix:///tmp/dmap.sock", true, "/tmp/dmap.sock"},
		"single slash": {"unix:/tmp/dmap.sock", true, "/tmp/dmap.sock"},
		"relative":     {"unix:dmap.sock", true, "dmap.sock"},
		"tcp":          {"localhost:1408", false, "localhost:1408"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.isUnix, IsUnixEndpoint(tt.endpoint))
			if tt.isUnix {
				assert.Equal(t, tt.path, SocketPath(tt.endpoint))
			}
		})
	}
}

func TestConnectAndUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.sock")
	lis, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lis.Close() })

	go func() {
		conn, err := lis.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	connector := &clientConnector{}
	assert.Equal(t, "unix", connector.GetName())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := connector.Connect(ctx, "unix://"+path)
	require.NoError(t, err)
	defer conn.Close()

	config := common.ClientConfig{}
	config.Transport.WriteBufferSize = 64 * 1024
	config.Transport.ReadBufferSize = 64 * 1024
	assert.NoError(t, connector.UpgradeConnection(conn, config))
}

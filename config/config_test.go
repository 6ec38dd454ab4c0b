package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eproxy/command"
	"eproxy/internal/errs"
	"eproxy/rpc/compress/snappy"
	"eproxy/rpc/serialize/proto"
)

const sample = `
service_key: v1
transport:
  kind: grpc
  address: 10.0.0.1:8081
  serializer: proto
  compressor: snappy
  timeout: 500ms
etcd:
  endpoints: ["127.0.0.1:2379"]
breaker:
  execution_timeout: 2s
commands:
  - service_id: Order.Get
    request_cache_enabled: true
    strategy: fallback
    fallback_name: OrderFallback
  - service_id: Order.List
    strategy: RoundRobin
    failover_cluster: 5
    execution_timeout: 300ms
log:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "eproxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "v1", cfg.ServiceKey)
	assert.Equal(t, "grpc", cfg.Transport.Kind)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.Timeout)
	assert.Equal(t, 30, cfg.Transport.MaxCap)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "/eproxy/commands", cfg.Etcd.CommandPrefix)
	assert.Equal(t, proto.Serializer{}, cfg.Transport.SerializerCodec())
	assert.Equal(t, snappy.Compressor{}, cfg.Transport.CompressorCodec())

	cmds := cfg.ServiceCommands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "Order.Get", cmds[0].ServiceID)
	assert.True(t, cmds[0].RequestCacheEnabled)
	assert.Equal(t, command.FallBack, cmds[0].Strategy)
	assert.Equal(t, "OrderFallback", cmds[0].FallBackName)
	assert.Equal(t, 2000, cmds[0].ExecutionTimeoutInMilliseconds)
	assert.Equal(t, 3, cmds[0].FailoverCluster)
	assert.Equal(t, command.RoundRobin, cmds[1].Strategy)
	assert.Equal(t, 5, cmds[1].FailoverCluster)
	assert.Equal(t, 300, cmds[1].ExecutionTimeoutInMilliseconds)

	logger, err := cfg.Log.Logger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("EPROXY_SERVICE_KEY", "v2")
	t.Setenv("EPROXY_TRANSPORT_ADDRESS", "10.0.0.2:9090")
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "v2", cfg.ServiceKey)
	assert.Equal(t, "10.0.0.2:9090", cfg.Transport.Address)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EPROXY_SERVICE_KEY", "v1")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Transport.Kind)
	assert.Equal(t, "json", cfg.Transport.Serializer)
	assert.Equal(t, time.Minute, cfg.Redis.CacheTTL)
	assert.Empty(t, cfg.ServiceCommands())
	assert.Equal(t, command.Default("Order.Get"), cfg.Breaker.Command("Order.Get"))
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "no service key",
			content: "transport:\n  kind: tcp\n",
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "transport kind",
			content: "service_key: v1\ntransport:\n  kind: udp\n",
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "compressor",
			content: "service_key: v1\ntransport:\n  compressor: brotli\n",
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "rate limiter",
			content: "service_key: v1\nrate_limit:\n  kind: leaky\n",
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "command without id",
			content: "service_key: v1\ncommands:\n  - strategy: FailOver\n",
			wantErr: errs.ErrInvalidConfig,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestLoad_UnknownStrategy(t *testing.T) {
	_, err := Load(writeConfig(t, "service_key: v1\ncommands:\n  - service_id: Order.Get\n    strategy: Shunt\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

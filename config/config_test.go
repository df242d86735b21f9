package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hc1node/forkmonitor/internal/entity"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	cmd := &cobra.Command{Use: "run"}
	RegisterFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return NewConfig(cmd, nil)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	require.Equal(t, []entity.NodeIdentity{
		{Name: "hc1", Endpoint: "wss://my.hc1node.com:35998"},
		{Name: "zenonhub", Endpoint: "wss://node.zenonhub.io:35998"},
		{Name: "atsocy", Endpoint: "wss://node.atsocy.com:35998"},
	}, cfg.Nodes)
	require.Equal(t, 5*time.Second, cfg.Interval)
	require.Equal(t, cfg.Interval, cfg.Timeout)
	require.Equal(t, time.Duration(0), cfg.StaleGrace)
	require.Equal(t, 10, cfg.HistorySize)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, 8000, cfg.Port)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
	require.Equal(t, "info", cfg.Level)
	require.False(t, cfg.NSQ.Enabled())
	require.Equal(t, entity.DefaultTopic, cfg.Topic)
}

func TestFlags(t *testing.T) {
	cfg, err := load(t,
		"--node", "a=http://127.0.0.1:35997",
		"--node", "b=ws://127.0.0.1:35998",
		"--poll.interval", "2s",
		"--stale.grace", "15s",
		"--history.size", "5",
		"--api.port", "9000",
		"--nsq.embed",
	)
	require.NoError(t, err)

	require.Equal(t, []entity.NodeIdentity{
		{Name: "a", Endpoint: "http://127.0.0.1:35997"},
		{Name: "b", Endpoint: "ws://127.0.0.1:35998"},
	}, cfg.Nodes)
	require.Equal(t, 2*time.Second, cfg.Interval)
	require.Equal(t, 15*time.Second, cfg.StaleGrace)
	require.Equal(t, 5, cfg.HistorySize)
	require.Equal(t, 9000, cfg.Port)
	require.True(t, cfg.NSQ.Enabled())
}

func TestEnvironment(t *testing.T) {
	t.Setenv("API_PORT", "8080")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("HC1_NODE_URL", "ws://10.0.0.1:35998")
	t.Setenv("FORKMONITOR_POLL_INTERVAL", "1s")

	cfg, err := load(t)
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.Equal(t, "DEBUG", cfg.Level)
	require.Equal(t, "ws://10.0.0.1:35998", cfg.Nodes[0].Endpoint)
	require.Equal(t, "wss://node.zenonhub.io:35998", cfg.Nodes[1].Endpoint)
	require.Equal(t, time.Second, cfg.Interval)
	require.Equal(t, time.Second, cfg.Timeout)
}

func TestEnvironmentNodeList(t *testing.T) {
	t.Setenv("FORKMONITOR_NODE", "a=ws://1.2.3.4:1,b=ws://5.6.7.8:2")

	cfg, err := load(t)
	require.NoError(t, err)

	require.Equal(t, []entity.NodeIdentity{
		{Name: "a", Endpoint: "ws://1.2.3.4:1"},
		{Name: "b", Endpoint: "ws://5.6.7.8:2"},
	}, cfg.Nodes)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forkmonitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodes:
  - name: local
    url: http://127.0.0.1:35997
  - name: backup
    url: wss://backup.example:35998
poll:
  interval: 3s
history:
  size: 20
`), 0600))

	cfg, err := load(t, "--config", path)
	require.NoError(t, err)

	require.Equal(t, []entity.NodeIdentity{
		{Name: "local", Endpoint: "http://127.0.0.1:35997"},
		{Name: "backup", Endpoint: "wss://backup.example:35998"},
	}, cfg.Nodes)
	require.Equal(t, 3*time.Second, cfg.Interval)
	require.Equal(t, 20, cfg.HistorySize)

	// Command line nodes take precedence over the file
	cfg, err = load(t, "--config", path, "--node", "only=http://127.0.0.1:1")
	require.NoError(t, err)
	require.Len(t, cfg.Nodes, 1)
}

func TestInvalidNodes(t *testing.T) {
	tests := map[string][]string{
		"missing separator": {"--node", "hc1"},
		"bad scheme":        {"--node", "hc1=ftp://127.0.0.1"},
		"no host":           {"--node", "hc1=ws://"},
		"no name":           {"--node", "=ws://127.0.0.1:35998"},
		"duplicate":         {"--node", "a=ws://127.0.0.1:1", "--node", "a=ws://127.0.0.1:2"},
		"zero interval":     {"--poll.interval", "0s"},
		"empty history":     {"--history.size", "0"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, args...)
			require.Error(t, err)
		})
	}
}

func TestValidateNoNodes(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	cfg.Nodes = nil
	require.EqualError(t, cfg.Validate(), "no nodes configured")
}

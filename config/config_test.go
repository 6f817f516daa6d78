package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	require.NoError(cfg.Validate(), "default config should be valid")
	require.Equal(MetricsModeNone, cfg.Metrics.Mode)
	require.EqualValues(30, cfg.Query.DefaultLimit)
	require.EqualValues(100, cfg.Query.MaxLimit)
}

func TestLoad(t *testing.T) {
	require := require.New(t)

	t.Setenv("DAO_TEST_DATA_DIR", "/var/lib/dao")

	cfg, err := Load([]byte(`
common:
  data_dir: ${DAO_TEST_DATA_DIR}
  log:
    format: json
    level:
      proposal/query: debug
grpc:
  port: 0
  socket: /tmp/dao.sock
metrics:
  mode: push
  address: http://127.0.0.1:9091
  job_name: dao-query
  interval: 10s
query:
  default_limit: 10
  max_limit: 50
`))
	require.NoError(err, "Load")
	require.Equal("/var/lib/dao", cfg.Common.DataDir, "environment substitution")
	require.Equal("json", cfg.Common.Log.Format)
	require.Equal("debug", cfg.Common.Log.Level["proposal/query"])
	require.Equal("info", cfg.Common.Log.Level["default"], "defaults should be kept")
	require.Zero(cfg.GRPC.Port)
	require.Equal("/tmp/dao.sock", cfg.GRPC.Socket)
	require.Equal(10*time.Second, cfg.Metrics.Interval)
	require.EqualValues(10, cfg.Query.DefaultLimit)
	require.EqualValues(50, cfg.Query.MaxLimit)

	cfg, err = Load(nil)
	require.NoError(err, "empty config")
	require.Equal(DefaultConfig(), *cfg)
}

func TestLoadInvalid(t *testing.T) {
	require := require.New(t)

	for _, tc := range []struct {
		raw string
		msg string
	}{
		{"common:\n  datadir: /tmp\n", "unknown field"},
		{"metrics:\n  mode: sometimes\n", "unknown metrics mode"},
		{"metrics:\n  mode: pull\n  address: \"\"\n", "pull without address"},
		{"metrics:\n  mode: push\n", "push without job name"},
		{"query:\n  default_limit: 200\n", "default above max"},
		{"common:\n  log:\n    format: xml\n", "bad log format"},
		{"common:\n  log:\n    level:\n      grpc: loud\n", "bad log level"},
	} {
		_, err := Load([]byte(tc.raw))
		require.Error(err, tc.msg)
	}
}

func TestInitConfig(t *testing.T) {
	require := require.New(t)

	defer func() { GlobalConfig = DefaultConfig() }()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(os.WriteFile(path, []byte("common:\n  data_dir: /srv/dao\n"), 0o600))
	require.NoError(InitConfig(path))
	require.Equal("/srv/dao", GlobalConfig.Common.DataDir)

	require.Error(InitConfig(filepath.Join(t.TempDir(), "missing.yml")))
}

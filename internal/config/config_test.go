package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gotest.tools/v3/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	assert.NilError(t, err)

	assert.Equal(t, cfg.LogLevel, "info")
	assert.Equal(t, cfg.Lookup.ProbeTimeout, 10*time.Second)
	assert.Equal(t, cfg.Lookup.GeoRatePerMinute, 45)
	assert.Equal(t, cfg.Server.Listen, ":5000")
	assert.Equal(t, cfg.Server.ResultsFile, "output/output.txt")
	assert.Equal(t, cfg.Server.PollInterval, time.Second)
	assert.Check(t, cfg.Server.BlockPrivate)
	assert.Check(t, !cfg.Lookup.BlockPrivate)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domaincheck.yaml")
	assert.NilError(t, os.WriteFile(path, []byte(`
log_level: debug
lookup:
  whois_timeout: 3s
  dns_servers: ["9.9.9.9:53"]
server:
  listen: "127.0.0.1:8080"
  poll_interval: 250ms
`), 0o644))

	t.Setenv("DOMAINCHECK_SERVER_UPLOAD_DIR", "/tmp/uploads")
	t.Setenv("DOMAINCHECK_LOG_LEVEL", "warn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-format", "text", "")
	assert.NilError(t, fs.Parse([]string{"--log-format", "json"}))

	v := viper.New()
	assert.NilError(t, v.BindPFlag("log_format", fs.Lookup("log-format")))

	cfg, err := Load(v, path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.LogLevel, "warn")
	assert.Equal(t, cfg.LogFormat, "json")
	assert.Equal(t, cfg.Lookup.WhoisTimeout, 3*time.Second)
	assert.DeepEqual(t, cfg.Lookup.DNSServers, []string{"9.9.9.9:53"})
	assert.Equal(t, cfg.Server.Listen, "127.0.0.1:8080")
	assert.Equal(t, cfg.Server.PollInterval, 250*time.Millisecond)
	assert.Equal(t, cfg.Server.UploadDir, "/tmp/uploads")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	assert.NilError(t, err)

	bad := *cfg
	bad.Server.PollInterval = 0
	assert.ErrorContains(t, bad.Validate(), "poll_interval")

	bad = *cfg
	bad.MetricsPort = 70000
	assert.ErrorContains(t, bad.Validate(), "out of range")
}

func TestLookupOptions(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	assert.NilError(t, err)

	opts := cfg.LookupOptions(true, true)
	assert.Check(t, opts.Basic)
	assert.Check(t, opts.BlockPrivate)
	assert.Equal(t, opts.ProbeTimeout, 10*time.Second)

	opts = cfg.LookupOptions(false, false)
	assert.Check(t, !opts.BlockPrivate)
}

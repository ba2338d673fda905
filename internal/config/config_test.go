package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bindWait, err := cfg.BindWait()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, bindWait)
	assert.Equal(t, "nfcapd", cfg.Tools.Collector)
	assert.Equal(t, ".pcap", cfg.TraceExt)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfconvert.yaml")
	doc := `
input_dir: /data/traces
merge: true
merged_output: /data/all.nf
tools:
  collector: /opt/nfdump/bin/nfcapd
capture:
  endpoint: 127.0.0.1:2055
  stop_wait: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/traces", cfg.InputDir)
	assert.True(t, cfg.Merge)
	assert.Equal(t, "/opt/nfdump/bin/nfcapd", cfg.Tools.Collector)
	// untouched fields keep their defaults
	assert.Equal(t, "softflowd", cfg.Tools.Replay)
	assert.Equal(t, "127.0.0.1:2055", cfg.Capture.Endpoint)

	stopWait, err := cfg.StopWait()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, stopWait)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfconvert.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  bind_wait: soon\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

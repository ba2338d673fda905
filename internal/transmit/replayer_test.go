package transmit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempTrace(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cap_run_1.pcap")
	require.NoError(t, os.WriteFile(path, []byte("fixture"), 0o644))
	return path
}

func TestTransmitMissingTrace(t *testing.T) {
	r := NewReplayer("true", 5)
	err := r.Transmit(context.Background(), filepath.Join(t.TempDir(), "absent.pcap"), "127.0.0.1:9995")
	assert.True(t, errors.Is(err, ErrTraceRead), "got %v, want ErrTraceRead", err)
}

func TestTransmitRunsToolToCompletion(t *testing.T) {
	r := NewReplayer("true", 5)
	assert.NoError(t, r.Transmit(context.Background(), tempTrace(t), "127.0.0.1:9995"))
}

func TestTransmitExportFailure(t *testing.T) {
	r := NewReplayer("false", 5)
	err := r.Transmit(context.Background(), tempTrace(t), "127.0.0.1:9995")
	assert.True(t, errors.Is(err, ErrExportSend), "got %v, want ErrExportSend", err)
}

func TestNewReplayerDefaults(t *testing.T) {
	r := NewReplayer("", 0)
	assert.Equal(t, "softflowd", r.bin)
	assert.Equal(t, 5, r.version)
}

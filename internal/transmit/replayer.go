package transmit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog/log"
)

var (
	// ErrTraceRead indicates the trace file could not be read.
	ErrTraceRead = errors.New("trace read failed")
	// ErrExportSend indicates the replay tool failed while exporting
	// flow datagrams to the collector endpoint.
	ErrExportSend = errors.New("flow export send failed")
)

const (
	defaultReplayBin = "softflowd"
	// NetFlow export protocol version spoken to the collector.
	defaultProtocolVersion = 5
)

// Replayer replays packet traces through the flow-export tool at a
// collector endpoint. Transmit runs the tool to completion; there are
// no partial or streamed semantics.
type Replayer struct {
	bin     string
	version int
}

// NewReplayer returns a Replayer using the given replay binary, or the
// defaults when arguments are zero.
func NewReplayer(bin string, version int) *Replayer {
	if bin == "" {
		bin = defaultReplayBin
	}
	if version <= 0 {
		version = defaultProtocolVersion
	}
	return &Replayer{bin: bin, version: version}
}

// Transmit reads tracePath and exports its flows as NetFlow datagrams
// to endpoint, returning when the replay has finished.
func (r *Replayer) Transmit(ctx context.Context, tracePath, endpoint string) error {
	if _, err := os.Stat(tracePath); err != nil {
		return fmt.Errorf("%w: %v", ErrTraceRead, err)
	}

	cmd := exec.CommandContext(ctx, r.bin,
		"-r", tracePath,
		"-n", endpoint,
		"-v", strconv.Itoa(r.version),
		"-d",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s: %v (output: %s)", ErrExportSend, tracePath, err, firstLine(out))
	}
	log.Debug().Str("trace", tracePath).Str("endpoint", endpoint).Msg("trace replayed")
	return nil
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}

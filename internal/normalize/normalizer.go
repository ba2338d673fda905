// Package normalize turns the collector's raw scratch-directory dump
// into a single clean flow-record file: the dump tool's header and
// summary lines are stripped and the remaining records are sorted into
// canonical ascending order.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/nfconvert-go/lib/helper"
)

// ErrDumpTool indicates the dump tool could not read the scratch
// directory. Fatal for the unit producing this flow file.
var ErrDumpTool = errors.New("dump tool failed")

const defaultDumpBin = "nfdump"

// Normalizer converts one scratch directory of collector output into
// one flow-record file.
type Normalizer struct {
	bin string
}

// NewNormalizer returns a Normalizer using the given dump binary, or
// the default when empty.
func NewNormalizer(bin string) *Normalizer {
	if bin == "" {
		bin = defaultDumpBin
	}
	return &Normalizer{bin: bin}
}

// Normalize reads every collector file under scratchDir as one logical
// record stream and writes the cleaned, sorted records to outPath,
// overwriting any existing file. Re-running against unchanged scratch
// contents yields byte-identical output.
func (n *Normalizer) Normalize(ctx context.Context, scratchDir, outPath string) error {
	cmd := exec.CommandContext(ctx, n.bin, "-R", scratchDir, "-o", "long")
	raw, err := cmd.Output()
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) && len(exit.Stderr) > 0 {
			return fmt.Errorf("%w: reading %s: %v (stderr: %s)", ErrDumpTool, scratchDir, err, firstLine(exit.Stderr))
		}
		return fmt.Errorf("%w: reading %s: %v", ErrDumpTool, scratchDir, err)
	}

	records := CleanDump(string(raw))
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(rec)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(outPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing flow file %s: %w", outPath, err)
	}
	log.Debug().Str("out", outPath).Int("records", len(records)).Msg("normalized flow records")
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

// CleanDump extracts the sorted record lines from a raw long-format
// dump: the first line (column header) is dropped, as is every blank
// line and every line not beginning with a digit (the trailing summary
// block). The survivors are stable-sorted ascending by their leading
// field, numeric-aware.
func CleanDump(raw string) []string {
	lines := strings.Split(raw, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}
	records := lines[:0]
	for _, line := range lines {
		if line == "" {
			continue
		}
		if line[0] < '0' || line[0] > '9' {
			continue
		}
		records = append(records, line)
	}
	helper.SortFlowLines(records)
	return records
}

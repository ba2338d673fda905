package normalize

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanDumpStripsHeaderFooterAndSorts(t *testing.T) {
	raw := "hdr\n5 x\n2 y\n\nSummary: 2 flows\n"
	got := CleanDump(raw)
	assert.Equal(t, []string{"2 y", "5 x"}, got)
}

func TestCleanDumpOutputProperties(t *testing.T) {
	raw := "Date first seen  Duration Proto\n" +
		"9 late\n" +
		"3 early\n" +
		"\n" +
		"Summary: total flows: 2\n" +
		"Time window: whatever\n"
	records := CleanDump(raw)
	for _, line := range records {
		require.NotEmpty(t, line)
		assert.True(t, line[0] >= '0' && line[0] <= '9', "line %q starts with a non-digit", line)
	}
}

func TestCleanDumpSortedForAnyPermutation(t *testing.T) {
	records := []string{"1 a", "2 b", "3 c", "10 d", "20 e"}
	for i := 0; i < 10; i++ {
		shuffled := append([]string(nil), records...)
		rand.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		raw := "hdr\n" + strings.Join(shuffled, "\n") + "\nSummary\n"
		assert.Equal(t, records, CleanDump(raw))
	}
}

// fakeDump returns a script that plays the dump tool, emitting a fixed
// long-format table.
func fakeDump(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakedump")
	script := "#!/bin/sh\nprintf '" + strings.ReplaceAll(raw, "\n", `\n`) + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestNormalizeWritesSortedFlowFile(t *testing.T) {
	bin := fakeDump(t, "hdr\n5 x\n2 y\n\nSummary: 2 flows\n")
	n := NewNormalizer(bin)
	out := filepath.Join(t.TempDir(), "out.nf")

	require.NoError(t, n.Normalize(context.Background(), t.TempDir(), out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "2 y\n5 x\n", string(data))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	bin := fakeDump(t, "hdr\n7 c\n1 a\n4 b\nSummary\n")
	n := NewNormalizer(bin)
	scratch := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.nf")

	require.NoError(t, n.Normalize(context.Background(), scratch, out))
	first, err := os.ReadFile(out)
	require.NoError(t, err)

	require.NoError(t, n.Normalize(context.Background(), scratch, out))
	second, err := os.ReadFile(out)
	require.NoError(t, err)

	assert.Equal(t, first, second, "re-running against unchanged scratch must be byte-identical")
}

func TestNormalizeDumpToolFailure(t *testing.T) {
	n := NewNormalizer("false")
	err := n.Normalize(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "out.nf"))
	assert.True(t, errors.Is(err, ErrDumpTool), "got %v, want ErrDumpTool", err)
}

func TestNormalizeDumpToolFailureReportsStderr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faildump")
	script := "#!/bin/sh\necho 'Bad value for -R: no such directory' >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	n := NewNormalizer(path)
	err := n.Normalize(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "out.nf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDumpTool))
	assert.Contains(t, err.Error(), "Bad value for -R", "dump tool stderr must be surfaced")
}

package sequence

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedName indicates that a trace filename does not carry a
// numeric sequencing key in the expected position. The batch must not
// proceed on a partial order, so callers treat this as fatal.
var ErrMalformedName = errors.New("malformed trace name")

const (
	keyDelimiter = "_"
	// 1-based position of the numeric key among the delimited tokens
	// of the extension-stripped basename.
	keyField = 3
)

// Trace is one discovered input capture file, immutable once ordered.
type Trace struct {
	Path string
	// Key is the integer extracted from the trace filename; it defines
	// the position of this trace in the batch.
	Key int
	// Base is the basename without the trace extension, used to name
	// this trace's output in per-input mode.
	Base string
}

// Discover walks root recursively and returns the paths of all regular
// files carrying the given extension (e.g. ".pcap"). The returned
// order is whatever the filesystem yields; Order establishes the
// canonical sequence.
func Discover(root, ext string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ext) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return paths, nil
}

// Order derives the sequencing key of every path and returns the
// traces sorted ascending by key. Paths whose key field is missing or
// non-numeric yield ErrMalformedName; equal keys are ordered by path
// so the result is always a total order independent of discovery
// order.
func Order(paths []string) ([]Trace, error) {
	traces := make([]Trace, 0, len(paths))
	for _, p := range paths {
		key, base, err := sortKey(p)
		if err != nil {
			return nil, err
		}
		traces = append(traces, Trace{Path: p, Key: key, Base: base})
	}
	sort.SliceStable(traces, func(i, j int) bool {
		if traces[i].Key != traces[j].Key {
			return traces[i].Key < traces[j].Key
		}
		return traces[i].Path < traces[j].Path
	})
	return traces, nil
}

// sortKey extracts the numeric ordering key and the extension-stripped
// basename from one trace path.
func sortKey(path string) (int, string, error) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	fields := strings.Split(base, keyDelimiter)
	if len(fields) < keyField {
		return 0, "", fmt.Errorf("%w: %q has %d field(s), need %d", ErrMalformedName, base, len(fields), keyField)
	}
	key, err := strconv.Atoi(fields[keyField-1])
	if err != nil {
		return 0, "", fmt.Errorf("%w: field %d of %q is not numeric", ErrMalformedName, keyField, base)
	}
	return key, base, nil
}

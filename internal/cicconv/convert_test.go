package cicconv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/nfconvert-go/lib/model"
)

func sampleRecord() Record {
	return Record{
		SrcIP:     "10.0.0.1",
		SrcPort:   1234,
		DstIP:     "10.0.0.2",
		DstPort:   80,
		Protocol:  6,
		Timestamp: time.Date(2017, 7, 7, 3, 30, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		NPackets:  [2]int32{10, 4},
		NBytes:    [2]int32{900, 240},
		Label:     model.Label{Index: 1, Name: "BENIGN"},
	}
}

func TestToNetFlowPairSwapsDirections(t *testing.T) {
	fwd, bwd := ToNetFlowPair(sampleRecord())

	assert.Equal(t, "10.0.0.1", fwd.SrcIP)
	assert.Equal(t, "10.0.0.2", fwd.DstIP)
	assert.Equal(t, uint32(10), fwd.NPackets)
	assert.Equal(t, uint32(900), fwd.NBytes)

	assert.Equal(t, "10.0.0.2", bwd.SrcIP)
	assert.Equal(t, "10.0.0.1", bwd.DstIP)
	assert.Equal(t, uint32(80), bwd.SrcPort)
	assert.Equal(t, uint32(1234), bwd.DstPort)
	assert.Equal(t, uint32(4), bwd.NPackets)
	assert.Equal(t, uint32(240), bwd.NBytes)

	assert.Equal(t, fwd.Timestamp, bwd.Timestamp)
	assert.Equal(t, uint32(1), fwd.NFlows)
	assert.Equal(t, uint32(1), bwd.NFlows)
}

func TestToNetFlowPairClampsNegativeDuration(t *testing.T) {
	r := sampleRecord()
	r.Duration = -time.Microsecond
	fwd, bwd := ToNetFlowPair(r)
	assert.Zero(t, fwd.Duration)
	assert.Zero(t, bwd.Duration)

	r.Duration = -5 * time.Second
	fwd, _ = ToNetFlowPair(r)
	assert.Zero(t, fwd.Duration)
}

func TestDurationWidth(t *testing.T) {
	cases := []struct {
		maxMillis int64
		want      int
	}{
		{0, 3},     // "0.0" fits, single digit plus separator plus pad
		{999, 5},   // sub-second batches gain an extra column
		{1000, 5},  // 4 digits + 1
		{12345, 6}, // 5 digits + 1
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DurationWidth(c.maxMillis), "maxMillis=%d", c.maxMillis)
	}
}

func TestConvertBatchAlignsDurationColumn(t *testing.T) {
	short := sampleRecord()
	short.Duration = 5 * time.Millisecond
	long := sampleRecord()
	long.Duration = 83 * time.Second

	flows := ConvertBatch([]Record{short, long})
	require.Len(t, flows, 4)

	width := len(flows[3].FormatDuration())
	for i := range flows {
		assert.Len(t, flows[i].FormatDuration(), width, "flow %d duration column misaligned", i)
	}
}

func TestCategorizeByLabelIndex(t *testing.T) {
	benign := sampleRecord()
	attack := sampleRecord()
	attack.Label = model.Label{Index: 2, Name: "DDoS"}

	flows := ConvertBatch([]Record{benign, attack})
	labels := map[string]uint8{"BENIGN": 1, "DDoS": 2}

	buckets := Categorize(flows, labels)
	require.Len(t, buckets, 2)
	assert.Len(t, buckets[0], 2, "benign bucket holds the benign pair")
	assert.Len(t, buckets[1], 2, "attack bucket holds the attack pair")
	assert.Equal(t, "DDoS", buckets[1][0].Label.Name)
}

func TestWriteNetFlowFile(t *testing.T) {
	flows := ConvertBatch([]Record{sampleRecord()})
	path := filepath.Join(t.TempDir(), "BENIGN.nf")
	require.NoError(t, WriteNetFlowFile(flows, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "10.0.0.1")
}

func TestConvertTreeMergesLabelAcrossFiles(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"day1", "day2"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	require.NoError(t, writeCSV(filepath.Join(root, "day1", "traffic.csv"), [][]string{
		csvRow("10.0.0.1", "1234", "10.0.0.2", "80", "6", "7/7/2017 3:30", "1500000", "BENIGN"),
	}))
	require.NoError(t, writeCSV(filepath.Join(root, "day2", "traffic.csv"), [][]string{
		csvRow("10.0.0.9", "1234", "10.0.0.8", "80", "6", "8/7/2017 3:30", "1500000", "BENIGN"),
		csvRow("10.0.0.3", "4321", "10.0.0.4", "443", "6", "8/7/2017 3:31", "2000000", "DDoS"),
	}))

	outDir := filepath.Join(t.TempDir(), "nf")
	require.NoError(t, ConvertTree(root, outDir, MeridiemNone, "BENIGN"))

	data, err := os.ReadFile(filepath.Join(outDir, "BENIGN.nf"))
	require.NoError(t, err)
	out := string(data)
	// both files' benign flows survive in the one label file
	assert.Contains(t, out, "10.0.0.1")
	assert.Contains(t, out, "10.0.0.9")
	assert.Len(t, strings.Split(strings.TrimRight(out, "\n"), "\n"), 4)

	_, err = os.Stat(filepath.Join(outDir, "DDoS.nf"))
	assert.NoError(t, err, "label seen only in the second file still gets its file")
}

func TestConvertFileWritesPerLabelFiles(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "day1.csv")
	rows := [][]string{
		csvRow("10.0.0.1", "1234", "10.0.0.2", "80", "6", "7/7/2017 3:30", "1500000", "BENIGN"),
		csvRow("10.0.0.3", "4321", "10.0.0.4", "443", "6", "7/7/2017 3:31", "2000000", "DDoS"),
	}
	require.NoError(t, writeCSV(csvPath, rows))

	outDir := filepath.Join(t.TempDir(), "nf")
	require.NoError(t, ConvertFile(csvPath, outDir, MeridiemNone, "BENIGN"))

	for _, name := range []string{"BENIGN.nf", "DDoS.nf"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, "expected %s", name)
	}
}

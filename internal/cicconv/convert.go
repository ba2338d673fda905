package cicconv

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/nfconvert-go/lib/model"
)

// ToNetFlowPair expands one bidirectional CIC record into its forward
// and backward NetFlow records. Negative durations are clamped to
// zero: -1 µs is a known dataset artifact, anything below that is
// logged loudly.
func ToNetFlowPair(r Record) (model.NetFlow, model.NetFlow) {
	d := r.Duration
	if d < 0 {
		if d == -time.Microsecond {
			log.Warn().Msg("duration of -1 us; converting to 0")
		} else {
			log.Warn().Dur("duration", d).Str("src", r.SrcIP).Str("dst", r.DstIP).
				Msg("duration below -1 us; converting to 0")
		}
		d = 0
	}
	forward := model.NetFlow{
		Timestamp: r.Timestamp,
		Duration:  d,
		Protocol:  r.Protocol,
		SrcIP:     r.SrcIP,
		SrcPort:   r.SrcPort,
		DstIP:     r.DstIP,
		DstPort:   r.DstPort,
		NPackets:  uint32(r.NPackets[0]),
		NBytes:    uint32(r.NBytes[0]),
		NFlows:    1,
		Label:     r.Label,
	}
	backward := forward
	backward.SrcIP, backward.DstIP = r.DstIP, r.SrcIP
	backward.SrcPort, backward.DstPort = r.DstPort, r.SrcPort
	backward.NPackets = uint32(r.NPackets[1])
	backward.NBytes = uint32(r.NBytes[1])
	return forward, backward
}

// ConvertBatch expands every CIC record into its two NetFlow records
// and aligns the duration column across the whole batch.
func ConvertBatch(records []Record) []model.NetFlow {
	flows := make([]model.NetFlow, 0, 2*len(records))
	var maxMillis int64
	for _, r := range records {
		fwd, bwd := ToNetFlowPair(r)
		if ms := fwd.DurationMillis(); ms > maxMillis {
			maxMillis = ms
		}
		flows = append(flows, fwd, bwd)
	}
	width := DurationWidth(maxMillis)
	for i := range flows {
		flows[i].SetDurationWidth(width)
	}
	return flows
}

// DurationWidth returns the printed width of the duration column for a
// batch whose longest flow lasted maxMillis.
func DurationWidth(maxMillis int64) int {
	width := decimalDigits(maxMillis) + 1
	if maxMillis < 1000 {
		width++
	}
	return width
}

func decimalDigits(x int64) int {
	if x == 0 {
		return 1
	}
	n := 0
	for x != 0 {
		x /= 10
		n++
	}
	return n
}

// Categorize splits flows into per-label buckets; bucket 0 holds the
// benign label (index 1).
func Categorize(flows []model.NetFlow, labels map[string]uint8) [][]model.NetFlow {
	buckets := make([][]model.NetFlow, len(labels))
	for _, f := range flows {
		i := int(f.Label.Index) - 1
		if i < 0 || i >= len(buckets) {
			log.Warn().Str("label", f.Label.Name).Uint8("index", f.Label.Index).
				Msg("flow with unassigned label dropped")
			continue
		}
		buckets[i] = append(buckets[i], f)
	}
	return buckets
}

// WriteNetFlowFile writes flows one per line to path, overwriting.
func WriteNetFlowFile(flows []model.NetFlow, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create file %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for i := range flows {
		if _, err := fmt.Fprintln(w, flows[i].String()); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ConvertFile converts one CIC CSV file into per-label NetFlow files
// named "<label>.nf" inside outDir.
func ConvertFile(inPath, outDir string, meridiem Meridiem, benignLabel string) error {
	records, labels, err := ReadIDSCSV(inPath, meridiem, benignLabel)
	if err != nil {
		return err
	}
	return writeCategorized(ConvertBatch(records), labels, outDir)
}

// ConvertTree converts every .csv file under root into a single set of
// per-label NetFlow files in outDir. Records are aggregated across all
// files before categorizing, so flows sharing a label across files end
// up in one file instead of the last file replacing the rest.
func ConvertTree(root, outDir string, meridiem Meridiem, benignLabel string) error {
	labels := map[string]uint8{benignLabel: 1}
	var records []Record
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}
		recs, err := readIDSCSV(path, meridiem, labels)
		if err != nil {
			return err
		}
		records = append(records, recs...)
		return nil
	})
	if err != nil {
		return err
	}
	return writeCategorized(ConvertBatch(records), labels, outDir)
}

func writeCategorized(flows []model.NetFlow, labels map[string]uint8, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("unable to create output directory %s: %w", outDir, err)
	}
	for _, bucket := range Categorize(flows, labels) {
		if len(bucket) == 0 {
			continue
		}
		name := bucket[0].Label.Name
		outPath := filepath.Join(outDir, name+".nf")
		if err := WriteNetFlowFile(bucket, outPath); err != nil {
			return err
		}
		log.Info().Str("label", name).Int("flows", len(bucket)).Str("out", outPath).Msg("wrote NetFlow file")
	}
	return nil
}

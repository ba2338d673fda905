// Package cicconv converts CIC IDS datasets in CSV form into
// categorized NetFlow v5 text files.
package cicconv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/nfconvert-go/lib/model"
)

// recordWidth is the column count of a well-formed CIC IDS CSV row.
const recordWidth = 85

// CIC timestamp layouts observed across the IDS datasets. Parsing
// remembers the last matching layout since rows in one file almost
// always share it.
var timeLayouts = []string{
	"2/1/2006 3:04 pm",
	"2/1/2006 3:04:05 pm",
	"2/1/2006 3:04:05.000000 pm",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04:05.000000",
}

// Record is one row of a CIC dataset. Packet and byte counts index 0
// for the forward direction and 1 for backward.
type Record struct {
	SrcIP     string
	SrcPort   uint32
	DstIP     string
	DstPort   uint32
	Protocol  uint8
	Timestamp time.Time
	Duration  time.Duration
	NPackets  [2]int32
	NBytes    [2]int32
	Label     model.Label
}

// Meridiem disambiguates CIC timestamps that omit am/pm.
type Meridiem int

const (
	MeridiemNone Meridiem = iota
	MeridiemAM
	MeridiemPM
)

// ReadIDSCSV loads a CIC CSV file and returns its records together
// with the label library. The benign label always has index 1; other
// labels are numbered in order of first appearance. Rows with the
// wrong column count are skipped with a warning.
func ReadIDSCSV(path string, meridiem Meridiem, benignLabel string) ([]Record, map[string]uint8, error) {
	labels := map[string]uint8{benignLabel: 1}
	records, err := readIDSCSV(path, meridiem, labels)
	if err != nil {
		return nil, nil, err
	}
	return records, labels, nil
}

// readIDSCSV parses one file into an existing label library so records
// from several files share consistent label indices.
func readIDSCSV(path string, meridiem Meridiem, labels map[string]uint8) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read CSV file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	// header row
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var records []Record
	layoutIdx := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(row) != recordWidth {
			log.Warn().Int("fields", len(row)).Str("file", path).Msg("skipped CSV record")
			continue
		}
		rec, idx, err := parseRecord(row, meridiem, layoutIdx)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		layoutIdx = idx
		assignLabel(labels, &rec)
		records = append(records, rec)
	}
	return records, nil
}

func parseRecord(row []string, meridiem Meridiem, layoutIdx int) (Record, int, error) {
	ts, idx, err := parseTimestamp(strings.TrimSpace(row[6]), meridiem, layoutIdx)
	if err != nil {
		return Record{}, layoutIdx, err
	}
	srcPort, err := strconv.ParseUint(strings.TrimSpace(row[2]), 10, 32)
	if err != nil {
		return Record{}, layoutIdx, fmt.Errorf("src port: %w", err)
	}
	dstPort, err := strconv.ParseUint(strings.TrimSpace(row[4]), 10, 32)
	if err != nil {
		return Record{}, layoutIdx, fmt.Errorf("dst port: %w", err)
	}
	proto, err := strconv.ParseUint(strings.TrimSpace(row[5]), 10, 8)
	if err != nil {
		return Record{}, layoutIdx, fmt.Errorf("protocol: %w", err)
	}
	micros, err := strconv.ParseInt(strings.TrimSpace(row[7]), 10, 64)
	if err != nil {
		return Record{}, layoutIdx, fmt.Errorf("duration: %w", err)
	}
	rec := Record{
		SrcIP:     strings.TrimSpace(row[1]),
		SrcPort:   uint32(srcPort),
		DstIP:     strings.TrimSpace(row[3]),
		DstPort:   uint32(dstPort),
		Protocol:  uint8(proto),
		Timestamp: ts,
		Duration:  time.Duration(micros) * time.Microsecond,
		NPackets:  [2]int32{sumFields(row[8], row[40]), sumFields(row[9], row[41])},
		NBytes:    [2]int32{floatField(row[10]), floatField(row[11])},
		Label:     model.Label{Name: strings.TrimSpace(row[84])},
	}
	return rec, idx, nil
}

// parseTimestamp tries the remembered layout first, then the rest.
func parseTimestamp(s string, meridiem Meridiem, guess int) (time.Time, int, error) {
	switch meridiem {
	case MeridiemAM:
		s += " am"
	case MeridiemPM:
		s += " pm"
	}
	if t, err := time.Parse(timeLayouts[guess], s); err == nil {
		return t, guess, nil
	}
	for i, layout := range timeLayouts {
		if i == guess {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t, i, nil
		}
	}
	return time.Time{}, guess, fmt.Errorf("time string matches no known format: %q", s)
}

func sumFields(a, b string) int32 {
	return floatField(a) + floatField(b)
}

func floatField(s string) int32 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		log.Warn().Str("field", s).Msg("unparseable count field, using 0")
		return 0
	}
	return int32(f)
}

func assignLabel(labels map[string]uint8, rec *Record) {
	if idx, ok := labels[rec.Label.Name]; ok {
		rec.Label.Index = idx
		return
	}
	idx := uint8(len(labels) + 1)
	labels[rec.Label.Name] = idx
	rec.Label.Index = idx
}

package model

import (
	"fmt"
	"time"
)

// Flags holds the TCP flags of a flow, rendered in the fixed
// "CEUAPRSF" order with dots for unset bits.
type Flags struct {
	CWR bool
	ECE bool
	URG bool
	ACK bool
	PSH bool
	RST bool
	SYN bool
	FIN bool
}

func (f Flags) String() string {
	b := []byte("........")
	set := []struct {
		on bool
		c  byte
	}{
		{f.CWR, 'C'}, {f.ECE, 'E'}, {f.URG, 'U'}, {f.ACK, 'A'},
		{f.PSH, 'P'}, {f.RST, 'R'}, {f.SYN, 'S'}, {f.FIN, 'F'},
	}
	for i, s := range set {
		if s.on {
			b[i] = s.c
		}
	}
	return string(b)
}

// Label is the attack/benign category a flow belongs to. Index 1 is
// reserved for the benign label; 0 means not yet assigned.
type Label struct {
	Index uint8
	Name  string
}

// NetFlow is one unidirectional flow record in NetFlow v5 text form.
type NetFlow struct {
	Timestamp time.Time
	Duration  time.Duration
	Protocol  uint8
	SrcIP     string
	SrcPort   uint32
	DstIP     string
	DstPort   uint32
	Flags     Flags
	QoS       float32
	NPackets  uint32
	NBytes    uint32
	NFlows    uint32
	Label     Label

	// durationWidth right-aligns the duration column across a batch.
	durationWidth int
}

// DurationMillis returns the flow duration in whole milliseconds.
func (n *NetFlow) DurationMillis() int64 {
	return n.Duration.Milliseconds()
}

// SetDurationWidth fixes the printed width of the duration column.
func (n *NetFlow) SetDurationWidth(w int) { n.durationWidth = w }

// FormatDuration renders the duration as "seconds.millis" padded to
// the batch-wide column width.
func (n *NetFlow) FormatDuration() string {
	ms := n.DurationMillis()
	s := fmt.Sprintf("%d.%d", ms/1000, ms%1000)
	return fmt.Sprintf("%*s", n.durationWidth, s)
}

func (n *NetFlow) String() string {
	return fmt.Sprintf("%s %s %3d %15s:%-5d ->   %15s:%-5d %3v %-8s %8d %8d %5d",
		n.Timestamp.Format("2006-01-02 15:04:05.000"),
		n.FormatDuration(),
		n.Protocol,
		n.SrcIP, n.SrcPort,
		n.DstIP, n.DstPort,
		n.QoS,
		n.Flags,
		n.NPackets,
		n.NBytes,
		n.NFlows,
	)
}

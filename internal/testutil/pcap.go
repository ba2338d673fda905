package testutil

import (
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// WriteSamplePCAP writes a small but valid pcap file containing a
// handful of UDP packets, for use as a trace fixture in tests.
func WriteSamplePCAP(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return err
	}

	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	base := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			SrcIP:    net.IP{192, 168, 0, 10},
			DstIP:    net.IP{192, 168, 0, 20},
			Protocol: layers.IPProtocolUDP,
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}
		buf := gopacket.NewSerializeBuffer()
		payload := gopacket.Payload([]byte("fixture"))
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, payload); err != nil {
			return err
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := w.WritePacket(ci, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

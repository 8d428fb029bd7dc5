package socket

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// PreparePacket builds an ethernet frame carrying payload in a UDP datagram
// from the DHCP server port to the client port
func PreparePacket(srcMAC net.HardwareAddr, srcIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()

	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}

	ethernet := &layers.Ethernet{
		DstMAC:       dstMAC,
		SrcMAC:       srcMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}

	ip := &layers.IPv4{
		Version:  4,
		TTL:      255,
		SrcIP:    srcIP.To4(),
		DstIP:    dstIP.To4(),
		Protocol: layers.IPProtocolUDP,
		Flags:    layers.IPv4DontFragment,
	}

	udp := &layers.UDP{
		SrcPort: layers.UDPPort(dhcpv4.ServerPort),
		DstPort: layers.UDPPort(dhcpv4.ClientPort),
	}

	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	err := gopacket.SerializeLayers(buf, opts,
		ethernet,
		ip,
		udp,
		gopacket.Payload(payload))

	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// extractUDPPayload decodes an ethernet frame and returns the UDP payload
// if the frame is an IPv4/UDP datagram destined to port. The returned
// address describes the sender of the frame
func extractUDPPayload(port int, frame []byte) ([]byte, *Addr, bool) {
	var (
		eth     layers.Ethernet
		ip4     layers.IPv4
		udp     layers.UDP
		payload gopacket.Payload
	)

	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &ip4, &udp, &payload)
	parser.IgnoreUnsupported = true

	decoded := make([]gopacket.LayerType, 0, 4)
	if err := parser.DecodeLayers(frame, &decoded); err != nil {
		return nil, nil, false
	}

	hasUDP := false
	for _, typ := range decoded {
		if typ == layers.LayerTypeUDP {
			hasUDP = true
		}
	}

	if !hasUDP || int(udp.DstPort) != port {
		return nil, nil, false
	}

	addr := &Addr{
		RawAddr: RawAddr{
			MAC:  append(net.HardwareAddr(nil), eth.SrcMAC...),
			IP:   append(net.IP(nil), ip4.SrcIP...),
			Port: uint16(udp.SrcPort),
		},
		Local: RawAddr{
			MAC:  append(net.HardwareAddr(nil), eth.DstMAC...),
			IP:   append(net.IP(nil), ip4.DstIP...),
			Port: uint16(udp.DstPort),
		},
	}

	return append([]byte(nil), udp.Payload...), addr, true
}

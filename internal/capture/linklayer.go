package capture

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"
)

// StripLinkLayer locates the IPv4 datagram inside one captured frame,
// given the data-link type pcap reported for the interface (spec.md §4.2).
// ok is false if the frame isn't an IPv4 datagram or the link type isn't
// one of the three recognised shapes.
func StripLinkLayer(linkType int, frame []byte) (payload []byte, ok bool) {
	switch linkType {
	case int(layers.LinkTypeEthernet):
		if len(frame) < 14 {
			return nil, false
		}
		etherType := binary.BigEndian.Uint16(frame[12:14])
		if etherType != 0x0800 {
			return nil, false
		}
		return frame[14:], true

	case int(layers.LinkTypeNull), int(layers.LinkTypeLoop):
		if len(frame) < 4 {
			return nil, false
		}
		family := binary.LittleEndian.Uint32(frame[0:4])
		if family != 2 {
			return nil, false
		}
		return frame[4:], true

	case int(layers.LinkTypeLinuxSLL):
		if len(frame) < 16 {
			return nil, false
		}
		etherType := binary.BigEndian.Uint16(frame[14:16])
		if etherType != 0x0800 {
			return nil, false
		}
		return frame[16:], true

	default:
		return nil, false
	}
}

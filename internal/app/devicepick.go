package app

import (
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket/pcap"
)

// ListDevices returns every capture-capable network device pcap can see,
// for the interactive selection prompt.
func ListDevices() ([]pcap.Interface, error) {
	return pcap.FindAllDevs()
}

// AutoDetectDevice implements spec.md §4.10's auto-detect mode: probe
// every non-loopback device for 3s, counting packets seen, and pick the
// busiest one.
// If no device saw any traffic (common in sandboxed or offline
// environments) it falls back to whichever device owns the route the OS
// would use to reach the public internet.
func AutoDetectDevice() (string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return "", fmt.Errorf("enumerate devices: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no capture devices found")
	}

	var bestName string
	var bestCount int

	for _, dev := range devices {
		if isLoopback(dev) {
			continue
		}

		count, err := probeTraffic(dev.Name, 3*time.Second)
		if err != nil {
			continue
		}

		if count > bestCount {
			bestCount = count
			bestName = dev.Name
		}
	}

	if bestName != "" {
		return bestName, nil
	}

	return routingTableDevice(devices)
}

func isLoopback(dev pcap.Interface) bool {
	for _, addr := range dev.Addresses {
		if addr.IP.IsLoopback() {
			return true
		}
	}
	return false
}

func probeTraffic(device string, window time.Duration) (int, error) {
	handle, err := pcap.OpenLive(device, 128, false, pcap.BlockForever)
	if err != nil {
		return 0, err
	}
	defer handle.Close()

	count := 0
	deadline := time.Now().Add(window)

	for time.Now().Before(deadline) {
		if err := handle.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
			break
		}

		if _, _, err := handle.ReadPacketData(); err == nil {
			count++
		}
	}

	return count, nil
}

// routingTableDevice falls back to matching the local address the OS
// would use to reach the public internet against each device's known
// addresses, approximating "consult the routing table" without requiring
// a netlink/syscall dependency per platform.
func routingTableDevice(devices []pcap.Interface) (string, error) {
	conn, err := net.Dial("udp4", "203.0.113.1:80") // TEST-NET-3, never routed; no packet is sent by Dial alone
	if err != nil {
		return "", fmt.Errorf("determine default route: %w", err)
	}
	defer conn.Close()

	local := conn.LocalAddr().(*net.UDPAddr).IP

	for _, dev := range devices {
		for _, addr := range dev.Addresses {
			if addr.IP.Equal(local) {
				return dev.Name, nil
			}
		}
	}

	return "", fmt.Errorf("no device matches the default route")
}

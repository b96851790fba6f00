package netio

import (
	"net"
)

// BroadcastAddrs enumerates the IPv4 broadcast addresses of every eligible
// local interface: up, non-loopback, non-point-to-point. The event loop's
// discovery duty sends to each of these every 2000ms while no sensors are
// registered.
//
// "Non-virtual" interfaces are approximated here as anything
// net.Interfaces reports with the broadcast flag set; Go's net package
// exposes no further distinction (tap/bridge/veth all report identically).
func BroadcastAddrs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagPointToPoint != 0 {
			continue
		}
		if iface.Flags&net.FlagBroadcast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}

			bcast := broadcastOf(ip4, ipNet.Mask)
			out = append(out, bcast)
		}
	}

	return out, nil
}

// broadcastOf computes the IPv4 broadcast address for ip under mask.
func broadcastOf(ip net.IP, mask net.IPMask) net.IP {
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

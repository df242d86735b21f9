package netutil

import (
	"net"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
)

// ExternalAddress iterates over all the network interfaces of the machine and
// returns the first non-loopback one (or the loopback if none can be found).
func ExternalAddress() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Warn("Failed to retrieve network interfaces", "err", err)
		return "127.0.0.1"
	}
	for _, iface := range ifaces {
		// Skip disconnected and loopback interfaces
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			log.Warn("Failed to retrieve network addresses", "err", err)
			continue
		}
		for _, addr := range addrs {
			switch v := addr.(type) {
			case *net.IPNet:
				return v.IP.String()
			case *net.IPAddr:
				return v.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

// AdvertisedURL returns the URL the API listening on host:port can be reached
// at from other machines. Wildcard hosts are replaced by the external address.
func AdvertisedURL(host string, port int) string {
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = ExternalAddress()
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

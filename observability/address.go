package observability

import (
	"net"
	"strings"
)

// GetOutboundIP is the local address used to reach the outside, empty when
// there is no route.
func GetOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer func() {
		_ = conn.Close()
	}()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

// SplitServiceID splits "Order.Get" into "Order" and "Get".
func SplitServiceID(serviceID string) (string, string) {
	if i := strings.LastIndexByte(serviceID, '.'); i > 0 {
		return serviceID[:i], serviceID[i+1:]
	}
	return "unknown", serviceID
}

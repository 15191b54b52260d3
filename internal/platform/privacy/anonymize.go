// Package privacy holds helpers for handling personally identifiable
// information. Audit rows keep raw addresses as legal evidence; everything
// that goes to structured logs passes through here first.
package privacy

import (
	"fmt"
	"net"
)

// AnonymizeIP truncates an IP address so log output cannot identify an
// individual visitor.
//
// IPv4 addresses lose their last octet ("192.168.1.47" -> "192.168.1.0").
// IPv6 addresses keep only the /48 prefix.
//
// Returns "invalid" for unparseable addresses and "unknown" for empty input.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	// IPv6 is 16 bytes; a /48 prefix is the first 6.
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

package utils

import (
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRealIP resolves the caller address recorded on audit rows and used as the
// rate limit key. A public X-Real-IP wins, then the first public X-Forwarded-For
// hop, then the first parseable hop, then gin's ClientIP.
func GetRealIP(c *gin.Context) string {
	if addr, ok := parseIP(c.GetHeader("X-Real-IP")); ok && isPublic(addr) {
		return addr.String()
	}

	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		var first string
		for _, hop := range strings.Split(forwarded, ",") {
			addr, ok := parseIP(hop)
			if !ok {
				continue
			}
			if isPublic(addr) {
				return addr.String()
			}
			if first == "" {
				first = addr.String()
			}
		}
		if first != "" {
			return first
		}
	}

	return c.ClientIP()
}

// GetUserAgent returns the User-Agent header or "Unknown"
func GetUserAgent(c *gin.Context) string {
	if ua := c.Request.UserAgent(); ua != "" {
		return ua
	}
	return "Unknown"
}

func IsLocalhost(ip string) bool {
	if ip == "localhost" {
		return true
	}
	addr, ok := parseIP(ip)
	return ok && addr.IsLoopback()
}

func parseIP(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func isPublic(addr netip.Addr) bool {
	return !addr.IsPrivate() && !addr.IsLoopback() && !addr.IsLinkLocalUnicast() && !addr.IsUnspecified()
}

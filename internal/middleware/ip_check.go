package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminIPWhitelist limits access to the listed addresses or CIDR ranges.
// An empty list allows everyone.
func AdminIPWhitelist(allowed []string) gin.HandlerFunc {
	if len(allowed) == 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	nets := make([]*net.IPNet, 0, len(allowed))
	for _, item := range allowed {
		if strings.Contains(item, "/") {
			if _, n, err := net.ParseCIDR(item); err == nil {
				nets = append(nets, n)
			}
			continue
		}
		if ip := net.ParseIP(item); ip != nil {
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return func(c *gin.Context) {
		clientIP := net.ParseIP(c.ClientIP())
		if clientIP != nil {
			for _, n := range nets {
				if n.Contains(clientIP) {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "ip not allowed"})
	}
}

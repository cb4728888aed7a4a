package httpserver

import (
	"fmt"
	"net"

	"github.com/labstack/echo/v4"
)

// ClientIP returns the extractor used to key rate limits. With no trusted
// proxies the socket peer is the client. Otherwise X-Forwarded-For is honoured
// only for hops inside the trusted ranges.
func ClientIP(trusted []string) (echo.IPExtractor, error) {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect(), nil
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trusted {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy range %q: %w", cidr, err)
		}
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

package ethereum

import "strings"

// Providers signal an oversized eth_getLogs range with free-form messages
// rather than a stable error code. These fragments cover the major hosted
// endpoints (Infura, Alchemy, QuickNode, Ankr, public BSC nodes).
var rangeErrorFragments = []string{
	"query returned more than",
	"block range",
	"too many results",
	"response size exceeded",
	"limit exceeded",
	"query timeout exceeded",
	"exceed maximum block range",
}

// IsRangeError reports whether err indicates the requested log range was too
// large for the provider and should be bisected.
func IsRangeError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range rangeErrorFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// IsRateLimited reports whether err looks like provider throttling, which
// the poll loop backs off from for longer than a generic transient error.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "capacity exceeded")
}

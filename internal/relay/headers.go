package relay

import (
	"net/http"
	"strings"
)

// hopByHopHeaders are connection-scoped and never forwarded in either direction
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// requestOnlyStripped are caller headers that belong to this service, not the upstream
var requestOnlyStripped = map[string]bool{
	"host":          true,
	"cookie":        true,
	"authorization": true,
}

func isHopByHopHeader(name string) bool {
	return hopByHopHeaders[strings.ToLower(name)]
}

// connectionTokens returns the extra header names listed in Connection.
func connectionTokens(h http.Header) map[string]bool {
	tokens := map[string]bool{}
	for _, v := range h.Values("Connection") {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				tokens[strings.ToLower(f)] = true
			}
		}
	}
	return tokens
}

func copyRequestHeaders(dst, src http.Header) {
	extra := connectionTokens(src)
	for key, values := range src {
		k := strings.ToLower(key)
		if isHopByHopHeader(k) || requestOnlyStripped[k] || extra[k] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func copyResponseHeaders(dst, src http.Header) {
	extra := connectionTokens(src)
	for key, values := range src {
		k := strings.ToLower(key)
		if isHopByHopHeader(k) || extra[k] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// setRelayHeaders adds the CORS and no-cache headers every relay response carries.
func setRelayHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Del("Expires")
}

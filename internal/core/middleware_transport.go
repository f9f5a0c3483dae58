package core

import (
	"net"
	"net/http"
	"strings"
)

// hstsValue is sent on responses served over TLS while redirection is on.
const hstsValue = "max-age=31536000"

// HTTPSRedirectMiddleware redirects plaintext requests to https with 307 so
// the method and body are preserved. Requests already on TLS, directly or
// behind a proxy setting X-Forwarded-Proto, get an HSTS header instead. It
// is a pass-through unless Security.HTTPSRedirect is enabled.
func (s *Server) HTTPSRedirectMiddleware(next http.Handler) http.Handler {
	if !s.Config.Security.HTTPSRedirect {
		return next
	}
	httpsPort := s.Config.Security.HTTPSPort

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSecureRequest(r) {
			w.Header().Set("Strict-Transport-Security", hstsValue)
			next.ServeHTTP(w, r)
			return
		}

		target := "https://" + redirectHost(r.Host, httpsPort) + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
	})
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// redirectHost replaces any port in host with httpsPort. The default port
// 443 and an empty httpsPort both yield a bare host.
func redirectHost(host, httpsPort string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	if httpsPort == "" || httpsPort == "443" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, httpsPort)
}

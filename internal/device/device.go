// Package device derives the per-login device descriptor and client address
// from an HTTP request.
package device

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/user_agent"
)

// Unknown is the descriptor used when the User-Agent says nothing useful.
const Unknown = "Unknown"

// Descriptor reduces a User-Agent to "Browser/OS", e.g. "Chrome/Linux".
// Version numbers are dropped so a browser update keeps the same device.
func Descriptor(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return Unknown
	}
	parsed := user_agent.New(ua)
	browser, _ := parsed.Browser()
	os := parsed.OSInfo().Name

	switch {
	case browser != "" && os != "":
		return browser + "/" + os
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return Unknown
	}
}

// FromRequest returns the descriptor for the request's User-Agent.
func FromRequest(r *http.Request) string {
	return Descriptor(r.UserAgent())
}

// RemoteAddr returns the client IP without the port. chi's RealIP middleware
// rewrites r.RemoteAddr from X-Forwarded-For / X-Real-IP upstream of this.
func RemoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

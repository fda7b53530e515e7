package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// Version returns the release version embedded at build time.
func Version() string {
	return strings.TrimSpace(version)
}

// UserAgent identifies outbound requests made on behalf of component.
func UserAgent(component string) string {
	ua := "BalancePoint/" + Version()
	if component != "" {
		ua += " (" + component + ")"
	}
	return ua
}

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements the http.RoundTripper interface. The caller's request
// is cloned so its headers are never modified.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// HTTPClient returns an http client whose requests carry the UserAgent for
// component.
func HTTPClient(timeout time.Duration, component string) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			transport: http.DefaultTransport,
			userAgent: UserAgent(component),
		},
		Timeout: timeout,
	}
}

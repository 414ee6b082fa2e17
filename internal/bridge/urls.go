// File: internal/bridge/urls.go
package bridge

import (
	"net"
	"net/url"
	"strings"

	"github.com/xkilldash9x/formbridge/api/schemas"
)

// composeHost is the service name the form server gets inside docker compose.
const composeHost = "form-server"

// PublicBaseURL is the form server address a human can open. An explicit
// public URL wins; otherwise the compose hostname is rewritten to localhost.
func PublicBaseURL(formServerURL, publicURL string) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/")
	}
	base := strings.TrimRight(formServerURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Hostname() != composeHost {
		return base
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort("localhost", port)
	} else {
		u.Host = "localhost"
	}
	return u.String()
}

// FallbackURL points at the form shell's query mode, which renders without a
// registered session: {base}/?fields=a,b&session_id=S[&context=...].
func FallbackURL(base, sessionID string, fields []string, formContext string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(base, "/"))
	sb.WriteString("/?fields=")
	// Field names are validated identifiers, so the list needs no escaping.
	sb.WriteString(strings.Join(fields, ","))
	sb.WriteString("&" + schemas.SessionQueryParam + "=")
	sb.WriteString(url.QueryEscape(sessionID))
	if formContext != "" {
		sb.WriteString("&context=")
		sb.WriteString(url.QueryEscape(formContext))
	}
	return sb.String()
}

// absoluteURL resolves a form path returned by the form server against base.
func absoluteURL(base, formPath string) string {
	if strings.HasPrefix(formPath, "http://") || strings.HasPrefix(formPath, "https://") {
		return formPath
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(formPath, "/")
}

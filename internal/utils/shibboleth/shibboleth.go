// Package shibboleth extracts the submitter identity injected by an
// authenticating reverse proxy. The service trusts these headers; it never
// authenticates users itself.
package shibboleth

import (
	"net/http"
	"strings"
)

const (
	headerGivenName = "Shib-Given-Name"
	headerSurname   = "Shib-Sn"
	headerMail      = "Shib-Mail"
	headerGroups    = "Shib-Groups"
)

// Identity is the proxy-asserted user attached to a request. All fields
// may be empty when the proxy is absent.
type Identity struct {
	FirstName string
	LastName  string
	Email     string
	Groups    []string
}

// FromHeader reads the identity attributes from proxy headers. Groups is a
// semicolon-separated list; blank entries are dropped.
func FromHeader(h http.Header) Identity {
	return Identity{
		FirstName: strings.TrimSpace(h.Get(headerGivenName)),
		LastName:  strings.TrimSpace(h.Get(headerSurname)),
		Email:     strings.TrimSpace(h.Get(headerMail)),
		Groups:    splitGroups(h.Get(headerGroups)),
	}
}

func splitGroups(raw string) []string {
	var groups []string
	for _, g := range strings.Split(raw, ";") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

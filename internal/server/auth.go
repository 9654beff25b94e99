package server

import "net/http"

// AuthenticationProvider is consulted on every connect attempt (spec §4.1).
// headers are the raw HTTP headers of the upgrade request; authPayload is an
// optional application-level payload a client may send as the first frame
// (this implementation does not require one — the default provider ignores
// it).
type AuthenticationProvider interface {
	Authenticate(headers http.Header, authPayload []byte) bool
}

// HeaderSecretAuth is the default AuthenticationProvider: it compares a
// configurable header (e.g. x-api-key) against an admin secret.
type HeaderSecretAuth struct {
	HeaderName string
	Secret     string
}

// NewHeaderSecretAuth builds a HeaderSecretAuth. An empty headerName defaults
// to "x-api-key", matching spec §4.1's example.
func NewHeaderSecretAuth(headerName, secret string) *HeaderSecretAuth {
	if headerName == "" {
		headerName = "x-api-key"
	}
	return &HeaderSecretAuth{HeaderName: headerName, Secret: secret}
}

// Authenticate accepts the connection iff the configured header's value
// equals Secret. A HeaderSecretAuth with an empty Secret accepts everything
// (useful for local development); production deployments must set Secret.
func (a *HeaderSecretAuth) Authenticate(headers http.Header, _ []byte) bool {
	if a.Secret == "" {
		return true
	}
	return headers.Get(a.HeaderName) == a.Secret
}

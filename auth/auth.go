// Package auth supplies credentials for transport connections. Providers
// produce the Authorization header for HTTP-based transports; credentials
// can be given directly or resolved from environment variables so they stay
// out of config files.
package auth

import (
	"encoding/base64"
	"net/http"
	"os"

	"github.com/c360/twinstreams/errors"
)

// Provider adds authentication to an outbound connection attempt.
type Provider interface {
	// Kind names the scheme for logs, such as "basic" or "bearer".
	Kind() string
	// Apply sets the scheme's headers. Called on every connection attempt,
	// so token providers can hand out a fresh token after a reconnect.
	Apply(header http.Header) error
}

// None is the no-authentication provider.
type None struct{}

func (None) Kind() string { return "none" }

func (None) Apply(http.Header) error { return nil }

// Basic carries username/password credentials.
type Basic struct {
	Username string
	Password string
}

func (b Basic) Kind() string { return "basic" }

func (b Basic) Apply(header http.Header) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(b.Username + ":" + b.Password))
	header.Set("Authorization", "Basic "+encoded)
	return nil
}

// Bearer carries a static bearer token.
type Bearer struct {
	Token string
}

func (b Bearer) Kind() string { return "bearer" }

func (b Bearer) Apply(header http.Header) error {
	header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// BearerFunc resolves a bearer token at connection time. Use this when
// tokens expire and a reconnect must carry a fresh one.
type BearerFunc func() (string, error)

func (BearerFunc) Kind() string { return "bearer" }

func (f BearerFunc) Apply(header http.Header) error {
	token, err := f()
	if err != nil {
		return errors.WrapTransient(err, "Auth", "Apply", "resolve bearer token")
	}
	header.Set("Authorization", "Bearer "+token)
	return nil
}

// PreAuthenticated asserts an already-authenticated subject via the
// x-ditto-pre-authenticated header. Only useful against backends running
// with pre-authentication enabled, typically local development setups.
type PreAuthenticated struct {
	Subject string
}

func (PreAuthenticated) Kind() string { return "pre-authenticated" }

func (p PreAuthenticated) Apply(header http.Header) error {
	header.Set("x-ditto-pre-authenticated", p.Subject)
	return nil
}

// BasicFromEnv builds a Basic provider from the named environment
// variables. Both must be set and non-empty.
func BasicFromEnv(usernameEnv, passwordEnv string) (Provider, error) {
	username := os.Getenv(usernameEnv)
	password := os.Getenv(passwordEnv)
	if username == "" || password == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Auth", "BasicFromEnv",
			"read credentials from "+usernameEnv+" and "+passwordEnv)
	}
	return Basic{Username: username, Password: password}, nil
}

// BearerFromEnv builds a Bearer provider from the named environment
// variable. The variable is read once; use BearerFunc for rotating tokens.
func BearerFromEnv(tokenEnv string) (Provider, error) {
	token := os.Getenv(tokenEnv)
	if token == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Auth", "BearerFromEnv",
			"read token from "+tokenEnv)
	}
	return Bearer{Token: token}, nil
}

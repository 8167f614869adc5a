// Package auth authenticates callers of the medicine API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// AuthMethod names an authentication scheme.
type AuthMethod string

// Supported authentication methods.
const (
	AuthMethodNone   AuthMethod = "none"
	AuthMethodMTLS   AuthMethod = "mtls"
	AuthMethodBasic  AuthMethod = "basic"
	AuthMethodAPIKey AuthMethod = "apikey"
	AuthMethodMulti  AuthMethod = "multi"
)

// AuthInfo describes an authenticated caller.
type AuthInfo struct {
	Method  AuthMethod
	Subject string
	Claims  map[string]any
}

// Authenticator validates a request and returns auth info.
type Authenticator interface {
	Authenticate(r *http.Request) (*AuthInfo, error)
	Method() AuthMethod
}

// Sentinel errors for authentication failures.
var (
	ErrUnauthenticated    = errors.New("unauthenticated: no credentials provided")
	ErrInvalidCert        = errors.New("invalid client certificate")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownMode        = errors.New("unknown auth mode")
	ErrNoAuthenticators   = errors.New("multi auth mode requires at least one authenticator")
)

// Settings selects and configures an authenticator.
type Settings struct {
	// Mode is one of none, mtls, basic, apikey or multi.
	Mode string
	// MTLS enables certificate authentication in multi mode.
	MTLS bool
	// MTLSOrganizations restricts client certificates to these subject
	// organizations. Empty allows any.
	MTLSOrganizations []string
	// BasicUsers has the form "user1:bcrypt_hash,user2:bcrypt_hash".
	BasicUsers string
	// APIKeys has the form "key1:name1,key2:name2".
	APIKeys string
}

// New builds the authenticator described by s. It returns nil for mode
// none, meaning every request is allowed.
func New(s Settings) (Authenticator, error) {
	switch AuthMethod(s.Mode) {
	case AuthMethodNone, "":
		return nil, nil
	case AuthMethodMTLS:
		return NewMTLSAuthenticator(s.MTLSOrganizations...), nil
	case AuthMethodBasic:
		return NewBasicAuthenticator(s.BasicUsers)
	case AuthMethodAPIKey:
		return NewAPIKeyAuthenticator(s.APIKeys)
	case AuthMethodMulti:
		return newMulti(s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, s.Mode)
	}
}

func newMulti(s Settings) (Authenticator, error) {
	var authenticators []Authenticator

	if s.MTLS {
		authenticators = append(authenticators, NewMTLSAuthenticator(s.MTLSOrganizations...))
	}

	if s.BasicUsers != "" {
		ba, err := NewBasicAuthenticator(s.BasicUsers)
		if err != nil {
			return nil, err
		}
		authenticators = append(authenticators, ba)
	}

	if s.APIKeys != "" {
		ak, err := NewAPIKeyAuthenticator(s.APIKeys)
		if err != nil {
			return nil, err
		}
		authenticators = append(authenticators, ak)
	}

	if len(authenticators) == 0 {
		return nil, ErrNoAuthenticators
	}

	return NewMultiAuthenticator(authenticators...), nil
}

type contextKey string

const authInfoKey contextKey = "auth_info"

// FromContext retrieves AuthInfo from the context.
func FromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authInfoKey).(*AuthInfo)
	return info, ok
}

// WithAuthInfo stores AuthInfo in the context.
func WithAuthInfo(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey, info)
}

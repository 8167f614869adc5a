package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// MultiAuthenticator chains methods. A method that sees no credentials of
// its kind passes the request on; a method that rejects presented
// credentials stops the chain, so a bad API key never falls back to mTLS.
type MultiAuthenticator struct {
	chain []Authenticator
}

// NewMultiAuthenticator chains the non-nil authenticators in order.
func NewMultiAuthenticator(authenticators ...Authenticator) *MultiAuthenticator {
	chain := make([]Authenticator, 0, len(authenticators))
	for _, a := range authenticators {
		if a != nil {
			chain = append(chain, a)
		}
	}
	return &MultiAuthenticator{chain: chain}
}

// Authenticate returns the first success. Rejections are prefixed with
// the method that produced them.
func (m *MultiAuthenticator) Authenticate(r *http.Request) (*AuthInfo, error) {
	for _, a := range m.chain {
		info, err := a.Authenticate(r)
		switch {
		case err == nil:
			return info, nil
		case errors.Is(err, ErrUnauthenticated):
			continue
		default:
			return nil, fmt.Errorf("%s: %w", a.Method(), err)
		}
	}

	return nil, ErrUnauthenticated
}

// Method returns AuthMethodMulti.
func (m *MultiAuthenticator) Method() AuthMethod {
	return AuthMethodMulti
}

// Methods lists the chained methods in order.
func (m *MultiAuthenticator) Methods() []AuthMethod {
	methods := make([]AuthMethod, len(m.chain))
	for i, a := range m.chain {
		methods[i] = a.Method()
	}
	return methods
}

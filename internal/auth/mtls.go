package auth

import (
	"crypto/x509"
	"fmt"
	"net/http"
	"slices"
)

// MTLSAuthenticator identifies callers by the verified leaf certificate.
// Chain verification is left to the TLS layer.
type MTLSAuthenticator struct {
	organizations []string
}

// NewMTLSAuthenticator accepts any certificate with a common name, or,
// when organizations is non-empty, only certificates issued to one of
// them.
func NewMTLSAuthenticator(organizations ...string) *MTLSAuthenticator {
	return &MTLSAuthenticator{organizations: organizations}
}

// Authenticate maps the leaf certificate to an AuthInfo whose subject is
// the common name.
func (a *MTLSAuthenticator) Authenticate(r *http.Request) (*AuthInfo, error) {
	if r.TLS == nil {
		return nil, ErrUnauthenticated
	}
	if len(r.TLS.PeerCertificates) == 0 {
		return nil, ErrInvalidCert
	}

	leaf := r.TLS.PeerCertificates[0]
	if leaf.Subject.CommonName == "" {
		return nil, fmt.Errorf("%w: empty common name", ErrInvalidCert)
	}
	if !a.allowed(leaf) {
		return nil, fmt.Errorf("%w: organization not allowed", ErrInvalidCert)
	}

	return &AuthInfo{
		Method:  AuthMethodMTLS,
		Subject: leaf.Subject.CommonName,
		Claims:  certClaims(leaf),
	}, nil
}

// Method returns AuthMethodMTLS.
func (a *MTLSAuthenticator) Method() AuthMethod {
	return AuthMethodMTLS
}

func (a *MTLSAuthenticator) allowed(leaf *x509.Certificate) bool {
	if len(a.organizations) == 0 {
		return true
	}
	for _, org := range leaf.Subject.Organization {
		if slices.Contains(a.organizations, org) {
			return true
		}
	}
	return false
}

func certClaims(leaf *x509.Certificate) map[string]any {
	claims := make(map[string]any)
	if leaf.SerialNumber != nil {
		claims["serial"] = leaf.SerialNumber.String()
	}
	if len(leaf.Subject.Organization) > 0 {
		claims["organizations"] = leaf.Subject.Organization
	}
	if len(leaf.DNSNames) > 0 {
		claims["dns_names"] = leaf.DNSNames
	}
	return claims
}

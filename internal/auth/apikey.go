package auth

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the API key.
const APIKeyHeader = "X-API-Key"

type apiKey struct {
	value []byte
	name  string
}

// APIKeyAuthenticator checks the X-API-Key header against a fixed key set.
type APIKeyAuthenticator struct {
	keys []apiKey
}

// NewAPIKeyAuthenticator parses "key1:name1,key2:name2". The name becomes
// the authenticated subject.
func NewAPIKeyAuthenticator(keysConfig string) (*APIKeyAuthenticator, error) {
	creds, err := parseCredentials("apikey auth", keysConfig)
	if err != nil {
		return nil, err
	}

	keys := make([]apiKey, 0, len(creds))
	for _, c := range creds {
		keys = append(keys, apiKey{value: []byte(c.identity), name: c.secret})
	}

	return &APIKeyAuthenticator{keys: keys}, nil
}

// Authenticate compares the presented key with every configured key in
// constant time and never stops early.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (*AuthInfo, error) {
	presented := r.Header.Get(APIKeyHeader)
	if presented == "" {
		return nil, ErrUnauthenticated
	}

	match := -1
	for i, k := range a.keys {
		if subtle.ConstantTimeCompare([]byte(presented), k.value) == 1 {
			match = i
		}
	}

	if match < 0 {
		return nil, ErrInvalidAPIKey
	}

	return &AuthInfo{Method: AuthMethodAPIKey, Subject: a.keys[match].name}, nil
}

// Method returns AuthMethodAPIKey.
func (a *APIKeyAuthenticator) Method() AuthMethod {
	return AuthMethodAPIKey
}

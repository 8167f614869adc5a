package auth

import (
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the user is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("medtrack-dummy"), bcrypt.MinCost)

// BasicAuthenticator checks HTTP Basic credentials against bcrypt hashes.
type BasicAuthenticator struct {
	users map[string][]byte
}

// NewBasicAuthenticator parses "user1:hash1,user2:hash2".
func NewBasicAuthenticator(usersConfig string) (*BasicAuthenticator, error) {
	creds, err := parseCredentials("basic auth", usersConfig)
	if err != nil {
		return nil, err
	}

	users := make(map[string][]byte, len(creds))
	for _, c := range creds {
		users[c.identity] = []byte(c.secret)
	}

	return &BasicAuthenticator{users: users}, nil
}

// Authenticate verifies the request's Basic credentials. Unknown users and
// wrong passwords produce the same error.
func (a *BasicAuthenticator) Authenticate(r *http.Request) (*AuthInfo, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, ErrUnauthenticated
	}

	hash, exists := a.users[username]
	if !exists {
		hash = dummyHash
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !exists {
		return nil, fmt.Errorf("%w: wrong username or password", ErrInvalidCredentials)
	}

	return &AuthInfo{Method: AuthMethodBasic, Subject: username}, nil
}

// Method returns AuthMethodBasic.
func (a *BasicAuthenticator) Method() AuthMethod {
	return AuthMethodBasic
}

// HashPassword returns a bcrypt hash suitable for APP_BASIC_AUTH_USERS.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("hash password: password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

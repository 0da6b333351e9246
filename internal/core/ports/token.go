package ports

import "time"

// TokenClaims is the validated identity carried by a bearer token.
type TokenClaims struct {
	Subject   string
	Email     string
	Roles     []string
	Issuer    string
	Audience  string
	ExpiresAt time.Time
}

// IssuedToken is a freshly signed bearer token.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenValidator checks a raw bearer token. Implementations must be safe for
// concurrent use.
type TokenValidator interface {
	Validate(raw string) (*TokenClaims, error)
}

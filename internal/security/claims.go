package security

import "time"

type TokenClaims struct {
	Subject string
	Role    string
	Exp     time.Time
	Issuer  string
}

package fhirgw

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthMode selects how the Gateway authenticates outbound requests.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthBearer AuthMode = "bearer"
	AuthSigned AuthMode = "signed"
)

// assertionLifetime mirrors the 5-minute ceiling SMART Backend Services
// places on client assertions; we hold ourselves to the same bound when
// acting as the client.
const assertionLifetime = 5 * time.Minute

// signClientAssertion builds a signed JWT client assertion identifying this
// Gateway to the FHIR server, following the SMART Backend Services shape
// (iss == sub == clientID, aud == audience, unique jti, short exp) but in
// the client role rather than the server-side verifier role. The Gateway
// passes its FHIR base URL as the audience.
func signClientAssertion(signingKey []byte, clientID, audience string) (string, error) {
	if len(signingKey) == 0 {
		return "", fmt.Errorf("fhirgw: signed auth mode requires a non-empty signing key")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": clientID,
		"sub": clientID,
		"aud": audience,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(assertionLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("fhirgw: signing client assertion: %w", err)
	}
	return signed, nil
}

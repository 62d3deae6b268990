package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the issuer of development tokens.
const TokenIssuer = "loadboard"

// IssueToken creates a signed ES256 token carrying the identity claims.
// signingKeyPEM is the PEM-encoded ECDSA private key.
func IssueToken(signingKeyPEM string, c Claims, ttl time.Duration) (string, error) {
	signingKey, err := jwt.ParseECPrivateKeyFromPEM([]byte(signingKeyPEM))
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":        TokenIssuer,
		ClaimSubject: c.Subject,
		ClaimEmail:   c.Email,
		ClaimOrgID:   c.OrgID,
		ClaimRole:    c.Role,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	if len(c.Groups) > 0 {
		claims[ClaimGroups] = c.Groups
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(signingKey)
}

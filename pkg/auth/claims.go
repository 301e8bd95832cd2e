package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Email  string
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims are the identity provider's access token claims. UserID is
// the provider's user id and doubles as the account id.
type AccessTokenClaims struct {
	UserID string     `json:"user_id"`
	Email  string     `json:"email,omitempty"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

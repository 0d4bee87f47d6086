package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.MemberRole
	JTI    string
}

func (p AccessTokenPayload) validate() error {
	if p.UserID == uuid.Nil {
		return ErrMissingUser
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("invalid member role %q", p.Role)
	}
	return nil
}

// AccessTokenClaims represents the typed JWT issued by the portal identity
// service. The jti doubles as the session id checked against Redis.
type AccessTokenClaims struct {
	UserID uuid.UUID        `json:"user_id"`
	Role   enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

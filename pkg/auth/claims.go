package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	SiteID *uuid.UUID
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients. SiteID is
// present only for site-scoped users; sponsor tokens carry none.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	SiteID *uuid.UUID     `json:"site_id,omitempty"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

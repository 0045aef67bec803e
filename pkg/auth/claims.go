package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	// Subject names the caller, e.g. "telegram-bot" or an operator handle.
	Subject string
	Role    enums.ActorRole
	// VendorID binds a vendor token to one vendor. Required for the vendor
	// role and rejected for every other role.
	VendorID *uuid.UUID
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to callers.
type AccessTokenClaims struct {
	Role     enums.ActorRole `json:"role"`
	VendorID *uuid.UUID      `json:"vendor_id,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing.
func (c *AccessTokenClaims) Validate() error {
	return checkRoleScope(c.Role, c.VendorID)
}

func checkRoleScope(role enums.ActorRole, vendorID *uuid.UUID) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid actor role %q", role)
	}
	scoped := vendorID != nil && *vendorID != uuid.Nil
	switch {
	case role == enums.ActorRoleVendor && !scoped:
		return errors.New("vendor token requires vendor_id")
	case role != enums.ActorRoleVendor && vendorID != nil:
		return fmt.Errorf("%s token must not carry vendor_id", role)
	}
	return nil
}

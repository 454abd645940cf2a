package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultAccessTokenTTL applies when the configured TTL is not positive.
const defaultAccessTokenTTL = 15 * time.Minute

// CustomClaims extends JWT standard claims with the dashboard role model.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role       Role   `json:"role"`
	HasControl bool   `json:"has_control,omitempty"`
	SessionID  string `json:"sid"`
}

// Can reports whether the token's role grants perm.
func (c *CustomClaims) Can(perm Permission) bool {
	return HasPermission(c.Role, perm)
}

// CanControlRobot reports whether the holder may move the robot or start a
// tour. Admins always may; anyone else needs control:robots and must hold
// control.
func (c *CustomClaims) CanControlRobot() error {
	if c.Role == RoleAdmin {
		return nil
	}
	if !c.Can(PermRobotsControl) {
		return fmt.Errorf("%w: %s", ErrForbidden, PermRobotsControl)
	}
	if !c.HasControl {
		return ErrNoControl
	}
	return nil
}

// GenerateAccessToken creates a signed HS256 access token for p.
func GenerateAccessToken(p Principal, secret string, ttlMinutes int) (string, error) {
	if p.ID == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !IsValidRole(p.Role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}

	ttl := time.Duration(ttlMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}

	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role:       p.Role,
		HasControl: p.HasControl,
		SessionID:  uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses an access token, returning the custom
// claims. It checks the signature, expiry, subject and role.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}

// Package token issues and validates the HS256 access tokens gate devices
// and operator consoles present. Claims bind every request to exactly one
// facility; the middleware copies them into the request context.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "gatelog/pkg/domain"
	dErrors "gatelog/pkg/domain-errors"
)

// Claims are the JWT claims carried by gatelog access tokens. OperatorID is
// empty for device tokens.
type Claims struct {
	OperatorID string `json:"operator_id,omitempty"`
	FacilityID string `json:"facility_id"`
	DeviceID   string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateOperatorToken issues a token for an operator console session.
func (s *JWTService) GenerateOperatorToken(operatorID id.OperatorID, facilityID id.FacilityID, expiresIn time.Duration) (string, error) {
	return s.sign(Claims{
		OperatorID:       operatorID.String(),
		FacilityID:       facilityID.String(),
		RegisteredClaims: s.registered(expiresIn),
	})
}

// GenerateDeviceToken issues a token for an unattended gate device.
func (s *JWTService) GenerateDeviceToken(deviceID string, facilityID id.FacilityID, expiresIn time.Duration) (string, error) {
	return s.sign(Claims{
		DeviceID:         deviceID,
		FacilityID:       facilityID.String(),
		RegisteredClaims: s.registered(expiresIn),
	})
}

func (s *JWTService) registered(expiresIn time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    s.issuer,
		Audience:  []string{s.audience},
		ID:        uuid.NewString(),
	}
}

func (s *JWTService) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// ValidateToken parses and verifies a token, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

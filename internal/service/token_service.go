package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/config"
)

// TokenFlavor selects the signing secret and lifetime of a token. The two
// flavors use separate secrets so an access token can never be presented as
// a refresh token or vice versa.
type TokenFlavor string

const (
	AccessToken  TokenFlavor = "access"
	RefreshToken TokenFlavor = "refresh"
)

// Claims is the payload embedded in every signed token.
type Claims struct {
	UserID uint64 `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenService is the claims codec: it mints and parses signed tokens and
// has no side effects beyond its configured secrets.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	logger        *logrus.Logger
}

func NewTokenService(cfg *config.TokenConfig, logger *logrus.Logger) (*TokenService, error) {
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, fmt.Errorf("token secrets must be at least 32 bytes")
	}

	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		logger:        logger,
	}, nil
}

func (s *TokenService) secretFor(flavor TokenFlavor) []byte {
	if flavor == RefreshToken {
		return s.refreshSecret
	}
	return s.accessSecret
}

func (s *TokenService) expiryFor(flavor TokenFlavor) time.Duration {
	if flavor == RefreshToken {
		return s.refreshExpiry
	}
	return s.accessExpiry
}

// AccessExpiry exposes the access-token lifetime for response bodies.
func (s *TokenService) AccessExpiry() time.Duration {
	return s.accessExpiry
}

// Mint signs a token of the given flavor for the user, issued now.
func (s *TokenService) Mint(userID uint64, flavor TokenFlavor) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiryFor(flavor))),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretFor(flavor))
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign token")
		return "", fmt.Errorf("%w: failed to sign token: %v", apperr.ErrInternal, err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry of a token of the given flavor.
// An invalid signature yields ErrInvalidToken, a valid but expired token
// ErrExpiredToken, any other decode failure ErrInternal.
func (s *TokenService) Parse(tokenString string, flavor TokenFlavor) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretFor(flavor), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", apperr.ErrExpiredToken, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidToken, err)
		default:
			return nil, fmt.Errorf("%w: failed to parse token: %v", apperr.ErrInternal, err)
		}
	}

	if !token.Valid {
		return nil, fmt.Errorf("%w: token did not validate", apperr.ErrInvalidToken)
	}
	return claims, nil
}

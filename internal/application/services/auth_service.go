package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tripboard/core/internal/infrastructure/config"
	"github.com/tripboard/core/internal/infrastructure/logger"
	"github.com/tripboard/core/internal/ports"
)

// Claims represents the JWT claims
type Claims struct {
	jwt.RegisteredClaims
}

// AuthService issues and validates API bearer tokens
type AuthService struct {
	jwtConfig config.AuthConfig
	now       func() time.Time
	logger    *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(jwtConfig config.AuthConfig, logger *logger.Logger) *AuthService {
	return &AuthService{
		jwtConfig: jwtConfig,
		now:       time.Now,
		logger:    logger,
	}
}

// IssueToken signs a token for subject. A zero ttl uses the configured expiry.
func (s *AuthService) IssueToken(subject string, ttl time.Duration) (*ports.TokenResponse, error) {
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if len(s.jwtConfig.Secret) == 0 {
		return nil, fmt.Errorf("token secret is not configured")
	}
	if ttl <= 0 {
		ttl = s.jwtConfig.ExpiresIn
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.jwtConfig.Issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtConfig.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Infow("API token issued", "subject", subject, "jti", claims.ID, "expires_at", expiresAt)

	return &ports.TokenResponse{
		AccessToken: tokenString,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.UTC(),
	}, nil
}

// ValidateToken validates a JWT token and returns claims
func (s *AuthService) ValidateToken(tokenString string) (*ports.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtConfig.Secret), nil
	},
		jwt.WithIssuer(s.jwtConfig.Issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &ports.Claims{
		Subject: claims.Subject,
		TokenID: claims.ID,
	}, nil
}

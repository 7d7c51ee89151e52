package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoSigningKey is returned when a validation-only service is asked to sign.
var ErrNoSigningKey = errors.New("auth: no signing key configured")

// JWTConfig holds token settings. Exactly one key source is used, in order:
// PrivateKeyPEM, PublicKeyPEM, Secret.
type JWTConfig struct {
	PrivateKeyPEM string
	PublicKeyPEM  string
	Secret        string
	Issuer        string
	Expiration    time.Duration
}

// JWTService signs and validates tokens.
type JWTService struct {
	config     JWTConfig
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	useRSA     bool
	now        func() time.Time
}

// NewJWTService builds a JWTService from cfg.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	svc := &JWTService{config: cfg, now: time.Now}

	switch {
	case cfg.PrivateKeyPEM != "":
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
		}
		svc.privateKey = key
		svc.publicKey = &key.PublicKey
		svc.useRSA = true
	case cfg.PublicKeyPEM != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		svc.publicKey = key
		svc.useRSA = true
	case cfg.Secret != "":
	default:
		return nil, errors.New("auth: jwt configuration requires a private key, public key, or secret")
	}

	if svc.config.Expiration <= 0 {
		svc.config.Expiration = 15 * time.Minute
	}
	return svc, nil
}

// NewJWTServiceFromFile builds a validation-only service from a PEM public key
// file, falling back to secret when path is empty.
func NewJWTServiceFromFile(path, secret, issuer string) (*JWTService, error) {
	cfg := JWTConfig{Secret: secret, Issuer: issuer}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %q: %w", path, err)
		}
		cfg.PublicKeyPEM = string(data)
	}
	return NewJWTService(cfg)
}

// GenerateToken issues a token for subject within tenantID.
func (s *JWTService) GenerateToken(subject string, tenantID uuid.UUID, roles []string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		TenantID: tenantID,
		Roles:    roles,
	}

	if s.useRSA {
		if s.privateKey == nil {
			return "", ErrNoSigningKey
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}
		return signed, nil
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses tokenString and checks signature, expiry, issuer and
// the presence of a tenant.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	if s.useRSA {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		if s.useRSA {
			return s.publicKey, nil
		}
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TenantID == uuid.Nil {
		return nil, errors.New("token carries no tenant")
	}

	return claims, nil
}

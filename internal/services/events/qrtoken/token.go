package qrtoken

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/gatherpoint/gatherpoint/internal/platform/errors"
	"github.com/gatherpoint/gatherpoint/internal/platform/id"
)

// tokenEnv holds raw env values before post-parse validation.
type tokenEnv struct {
	Issuer    string `env:"GATHERPOINT_ATTENDANCE_TOKEN_ISSUER"`
	Audience  string `env:"GATHERPOINT_ATTENDANCE_TOKEN_AUDIENCE"`
	PublicKey string `env:"GATHERPOINT_ATTENDANCE_TOKEN_PUBLIC_KEY"`
}

// VerifierConfig defines how attendance tokens are verified.
type VerifierConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Claims captures a validated attendance token.
type Claims struct {
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	JWTID     string
	EventID   string
	UserID    string
}

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
}

// LoadVerifierConfigFromEnv reads attendance token verification configuration.
func LoadVerifierConfigFromEnv(now func() time.Time) (VerifierConfig, error) {
	var raw tokenEnv
	if err := env.Parse(&raw); err != nil {
		return VerifierConfig{}, fmt.Errorf("parse attendance token env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return VerifierConfig{}, fmt.Errorf("GATHERPOINT_ATTENDANCE_TOKEN_ISSUER is required")
	}
	if audience == "" {
		return VerifierConfig{}, fmt.Errorf("GATHERPOINT_ATTENDANCE_TOKEN_AUDIENCE is required")
	}
	if publicKey == "" {
		return VerifierConfig{}, fmt.Errorf("GATHERPOINT_ATTENDANCE_TOKEN_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return VerifierConfig{}, fmt.Errorf("decode attendance token public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return VerifierConfig{}, fmt.Errorf("attendance token public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return VerifierConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// MintOptions describe one attendance token to sign.
type MintOptions struct {
	Issuer   string
	Audience string
	EventID  string
	UserID   string
	JWTID    string
	IssuedAt time.Time
	TTL      time.Duration
}

// Mint signs an attendance token binding one user to one event.
func Mint(key ed25519.PrivateKey, opts MintOptions) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", errors.New("attendance token signing key is invalid")
	}
	opts.EventID = strings.TrimSpace(opts.EventID)
	opts.UserID = strings.TrimSpace(opts.UserID)
	opts.JWTID = strings.TrimSpace(opts.JWTID)
	if opts.EventID == "" {
		return "", errors.New("event id is required")
	}
	if opts.UserID == "" {
		return "", errors.New("user id is required")
	}
	if opts.JWTID == "" {
		generated, err := id.NewID()
		if err != nil {
			return "", fmt.Errorf("generate jti: %w", err)
		}
		opts.JWTID = generated
	}
	if opts.IssuedAt.IsZero() {
		opts.IssuedAt = time.Now().UTC()
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    opts.Issuer,
			Audience:  jwt.ClaimStrings{opts.Audience},
			ID:        opts.JWTID,
			IssuedAt:  jwt.NewNumericDate(opts.IssuedAt.UTC()),
			ExpiresAt: jwt.NewNumericDate(opts.IssuedAt.UTC().Add(opts.TTL)),
		},
		EventID: opts.EventID,
		UserID:  opts.UserID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign attendance token: %w", err)
	}
	return signed, nil
}

// Verify checks an attendance token signature and claims and returns the
// bound event and user.
func Verify(token string, cfg VerifierConfig) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeInvalidQrPayload, "attendance token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Claims{}, errors.New("attendance token verifier is not configured")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeInvalidQrPayload,
			"attendance token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeInvalidQrPayload,
			"attendance token audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ID == "" {
		return Claims{}, apperrors.New(apperrors.CodeInvalidQrPayload, "attendance token jti is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeInvalidQrPayload, "attendance token exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodeInvalidQrPayload, "attendance token is expired")
	}
	if strings.TrimSpace(parsed.EventID) == "" {
		return Claims{}, apperrors.New(apperrors.CodeInvalidQrPayload, "attendance token is missing the event id")
	}
	if strings.TrimSpace(parsed.UserID) == "" {
		return Claims{}, apperrors.New(apperrors.CodeInvalidQrPayload, "attendance token is missing the user id")
	}

	claims := Claims{
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		ExpiresAt: exp,
		JWTID:     parsed.ID,
		EventID:   parsed.EventID,
		UserID:    parsed.UserID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeInvalidQrPayload, "attendance token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeInvalidQrPayload, "attendance token alg is invalid")
	}
	return apperrors.New(apperrors.CodeInvalidQrPayload, "attendance token is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}

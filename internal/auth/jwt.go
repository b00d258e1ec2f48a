package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the portal access token: identifies the acting user on the
// portal-facing API.
type Claims struct {
	UserID string `json:"sub"`
	jwt.RegisteredClaims
}

// DocumentClaims binds an editing session token to a document key, a
// user and the document type. The editing server presents it back on
// callbacks and content fetches; it is verified before any registry
// mutation.
type DocumentClaims struct {
	UserID  string `json:"sub"`
	DocKey  string `json:"docKey"`
	DocType string `json:"docType"`
	jwt.RegisteredClaims
}

type TokenConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

func DefaultTokenConfig(secret string) TokenConfig {
	return TokenConfig{
		Secret: secret,
		Expiry: 24 * time.Hour,
		Issuer: "docbroker",
	}
}

func newJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func registered(subject, jti string, cfg TokenConfig) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.Expiry)),
		ID:        jti,
		Subject:   subject,
	}
}

func CreateToken(userID string, cfg TokenConfig) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("missing secret")
	}
	if userID == "" {
		return "", errors.New("missing userID")
	}
	if cfg.Expiry <= 0 {
		return "", errors.New("invalid expiry")
	}

	jti, err := newJTI()
	if err != nil {
		return "", err
	}
	claims := Claims{
		UserID:           userID,
		RegisteredClaims: registered(userID, jti, cfg),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

func VerifyToken(tokenString string, cfg TokenConfig) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("missing secret")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

func CreateDocumentToken(userID, docKey, docType string, cfg TokenConfig) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("missing secret")
	}
	if userID == "" || docKey == "" {
		return "", errors.New("missing userID or docKey")
	}
	if cfg.Expiry <= 0 {
		return "", errors.New("invalid expiry")
	}

	jti, err := newJTI()
	if err != nil {
		return "", err
	}
	claims := DocumentClaims{
		UserID:           userID,
		DocKey:           docKey,
		DocType:          docType,
		RegisteredClaims: registered(userID, jti, cfg),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// VerifyDocumentToken checks the signature and that the token was minted
// for the given document key. A token for another document is invalid.
func VerifyDocumentToken(tokenString, docKey string, cfg TokenConfig) (*DocumentClaims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("missing secret")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &DocumentClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*DocumentClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.DocKey != docKey {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

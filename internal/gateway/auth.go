package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yoockh/callbridge/internal/utils"
)

type AuthMode string

const (
	AuthSharedSecret AuthMode = "shared_secret"
	AuthJWT          AuthMode = "jwt"
	AuthNone         AuthMode = "none"
)

func ParseAuthMode(s string) (AuthMode, error) {
	switch m := AuthMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", AuthSharedSecret:
		return AuthSharedSecret, nil
	case AuthJWT, AuthNone:
		return m, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q", s)
	}
}

var errBadToken = errors.New("token mismatch")

// callClaims are the claims accepted in AUTH_MODE=jwt. Both custom claims
// are optional; when present they must match the connection.
type callClaims struct {
	jwt.RegisteredClaims
	CallID   string `json:"call_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

// TokenVerifier checks the token presented on the upgrade request.
type TokenVerifier struct {
	mode   AuthMode
	secret string
	hash   string
}

// NewTokenVerifier validates the auth configuration. Shared-secret mode
// needs a secret or a bcrypt hash, jwt mode needs the signing secret. An
// open gateway must be asked for with AuthNone.
func NewTokenVerifier(mode AuthMode, secret, secretHash string) (*TokenVerifier, error) {
	switch mode {
	case AuthNone:
	case AuthSharedSecret:
		if secret == "" && secretHash == "" {
			return nil, errors.New("ACCESS_TOKEN or ACCESS_TOKEN_BCRYPT is required unless AUTH_MODE=none")
		}
	case AuthJWT:
		if secret == "" {
			return nil, errors.New("ACCESS_TOKEN is required as the signing key when AUTH_MODE=jwt")
		}
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
	return &TokenVerifier{mode: mode, secret: secret, hash: secretHash}, nil
}

func (v *TokenVerifier) Mode() AuthMode { return v.mode }

// Verify returns an UNAUTHORIZED AppError when token does not grant access
// to callID for tenantID.
func (v *TokenVerifier) Verify(token, callID, tenantID string) error {
	const op = "TokenVerifier.Verify"

	var err error
	switch v.mode {
	case AuthNone:
		return nil
	case AuthSharedSecret:
		err = v.verifyShared(token)
	case AuthJWT:
		err = v.verifyJWT(token, callID, tenantID)
	}
	if err != nil {
		return utils.E(utils.CodeUnauthorized, op, "invalid token", err)
	}
	return nil
}

func (v *TokenVerifier) verifyShared(token string) error {
	if token == "" {
		return errors.New("missing token")
	}
	if v.secret != "" {
		if !utils.EqualSecret(v.secret, token) {
			return errBadToken
		}
		return nil
	}
	return utils.CheckSecret(v.hash, token)
}

func (v *TokenVerifier) verifyJWT(raw, callID, tenantID string) error {
	if raw == "" {
		return errors.New("missing token")
	}
	claims := &callClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(v.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return err
	}
	if !tok.Valid {
		return errBadToken
	}
	if claims.CallID != "" && claims.CallID != callID {
		return fmt.Errorf("token issued for call %q", claims.CallID)
	}
	if claims.TenantID != "" && claims.TenantID != tenantID {
		return fmt.Errorf("token issued for tenant %q", claims.TenantID)
	}
	return nil
}

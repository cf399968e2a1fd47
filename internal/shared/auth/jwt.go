package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultTokenTTL = 12 * time.Hour
	clockSkew       = 30 * time.Second
)

// Claims identifies the operator behind a request. Tokens are issued by the
// ERP; letterctl can mint development tokens with the same shape.
type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name,omitempty"`
	Iss  string `json:"iss,omitempty"`
	Exp  int64  `json:"exp,omitempty"`
	Iat  int64  `json:"iat,omitempty"`
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
}

var (
	errMissingSecret = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

// SignJWT signs claims with HS256. Missing iat, exp and iss are filled from
// the clock and JWT_ISSUER.
func SignJWT(claims Claims) (string, error) {
	key, err := signingKey()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Sub) == "" {
		return "", errors.New("sub is required")
	}

	now := time.Now().UTC()
	if claims.Iat == 0 {
		claims.Iat = now.Unix()
	}
	if claims.Exp == 0 {
		claims.Exp = now.Add(defaultTokenTTL).Unix()
	}
	if claims.Iss == "" {
		claims.Iss = expectedIssuer()
	}

	head, err := encodeSegment(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	body, err := encodeSegment(claims)
	if err != nil {
		return "", err
	}
	unsigned := head + "." + body
	return unsigned + "." + mac(unsigned, key), nil
}

// VerifyJWT checks signature, algorithm, expiry and, when JWT_ISSUER is set,
// the issuer. Every failure maps to ErrInvalidToken.
func VerifyJWT(token string) (Claims, error) {
	key, err := signingKey()
	if err != nil {
		return Claims{}, err
	}

	head, body, sig, ok := split(token)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(mac(head+"."+body, key))) {
		return Claims{}, ErrInvalidToken
	}

	var h header
	if err := decodeSegment(head, &h); err != nil || h.Alg != "HS256" {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := decodeSegment(body, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}

	now := time.Now().UTC()
	switch {
	case claims.Sub == "":
		return Claims{}, ErrInvalidToken
	case claims.Exp > 0 && now.Add(-clockSkew).Unix() > claims.Exp:
		return Claims{}, ErrInvalidToken
	case claims.Iat > 0 && now.Add(clockSkew).Unix() < claims.Iat:
		return Claims{}, ErrInvalidToken
	}
	if iss := expectedIssuer(); iss != "" && claims.Iss != iss {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func split(token string) (head, body, sig string, ok bool) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func encodeSegment(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeSegment(seg string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func mac(input string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func expectedIssuer() string {
	return strings.TrimSpace(os.Getenv("JWT_ISSUER"))
}

func signingKey() ([]byte, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret != "" {
		return []byte(secret), nil
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ENV"))) {
	case "production", "prod":
		return nil, fmt.Errorf("%w: JWT_SECRET required in production", errMissingSecret)
	}
	return []byte("dev-secret"), nil
}

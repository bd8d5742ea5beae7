package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWT authenticates HS256 bearer tokens.
type JWT struct {
	tokenAuth *jwtauth.JWTAuth
	ttl       time.Duration
	now       func() time.Time
}

// NewJWT creates a JWT provider. Tokens issued by it expire after ttl.
func NewJWT(secret string, ttl time.Duration) *JWT {
	return &JWT{
		tokenAuth: jwtauth.New("HS256", []byte(secret), nil, jwt.WithAcceptableSkew(30*time.Second)),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Issue mints an access token for userID with role.
func (j *JWT) Issue(userID int64, role Role) (token string, expiresAt time.Time, err error) {
	expiresAt = j.now().Add(j.ttl)
	claims := map[string]interface{}{
		"user_id": userID,
		"role":    string(role),
		"type":    "access",
		"iat":     j.now().Unix(),
		"exp":     expiresAt.Unix(),
	}
	_, token, err = j.tokenAuth.Encode(claims)
	return token, expiresAt, err
}

// Authenticate verifies the Authorization: Bearer header.
func (j *JWT) Authenticate(r *http.Request) (Actor, error) {
	token, err := jwtauth.VerifyRequest(j.tokenAuth, r, jwtauth.TokenFromHeader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, err := token.AsMap(r.Context())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if typ, _ := claims["type"].(string); typ != "access" {
		return nil, fmt.Errorf("%w: not an access token", ErrUnauthenticated)
	}

	id, err := claimInt64(claims["user_id"])
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: invalid user_id claim", ErrUnauthenticated)
	}
	rawRole, _ := claims["role"].(string)
	role, err := ParseRole(rawRole)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	return Identity{UserID: id, UserRole: role}, nil
}

// claimInt64 reads a numeric claim that may have been decoded as float64,
// json.Number or a string.
func claimInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("unexpected claim type %T", v)
}

package security

import (
	"errors"
	"time"
	"tle_zone_grader/internal/domain/model"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

var TokenAuth *jwtauth.JWTAuth

func InitJWT(key []byte) {
	TokenAuth = jwtauth.New("HS256", key, nil)
}

// GenerateToken issues a bearer token for p. The grader only verifies tokens;
// this exists for operators and tests.
func GenerateToken(p model.Principal, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": p.UserID,
		"role":    p.Role,
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

// PrincipalFromClaims reads the caller identity. "sub" is accepted when
// "user_id" is absent, and a missing role means a regular user.
func PrincipalFromClaims(claims jwt.MapClaims) (model.Principal, error) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		id, ok = claims["sub"].(string)
	}
	if !ok || id == "" {
		return model.Principal{}, errors.New("user_id claim is missing or not a string")
	}
	role := model.RoleUser
	if raw, present := claims["role"]; present {
		r, ok := raw.(string)
		if !ok {
			return model.Principal{}, errors.New("role claim is not a string")
		}
		if r != "" {
			role = r
		}
	}
	return model.Principal{UserID: id, Role: role}, nil
}

package security

import (
	"testing"
	"time"
	"tle_zone_grader/internal/domain/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalFromClaims(t *testing.T) {
	cases := []struct {
		name    string
		claims  jwt.MapClaims
		want    model.Principal
		wantErr bool
	}{
		{"user_id and role", jwt.MapClaims{"user_id": "u1", "role": "admin"}, model.Principal{UserID: "u1", Role: model.RoleAdmin}, false},
		{"sub fallback", jwt.MapClaims{"sub": "u2"}, model.Principal{UserID: "u2", Role: model.RoleUser}, false},
		{"missing id", jwt.MapClaims{"role": "user"}, model.Principal{}, true},
		{"numeric role", jwt.MapClaims{"user_id": "u1", "role": 7}, model.Principal{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PrincipalFromClaims(tc.claims)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGenerateTokenRoundTrip(t *testing.T) {
	InitJWT([]byte("secret"))
	tok, err := GenerateToken(model.Principal{UserID: "u9", Role: model.RoleUser}, time.Minute)
	require.NoError(t, err)

	decoded, err := TokenAuth.Decode(tok)
	require.NoError(t, err)
	claims, err := decoded.AsMap(t.Context())
	require.NoError(t, err)
	p, err := PrincipalFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, "u9", p.UserID)
}

package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/ridehub/ridehub/errs"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	req := require.New(t)
	secret := []byte("test-secret")

	token, err := GenerateToken(secret, "user-1", time.Minute)
	req.NoError(err)

	userID, err := ParseToken(secret, token)
	req.NoError(err)
	req.Equal("user-1", userID)
}

func TestParseToken_Rejects(t *testing.T) {
	secret := []byte("test-secret")

	expired, err := GenerateToken(secret, "user-1", -time.Minute)
	require.NoError(t, err)

	otherKey, err := GenerateToken([]byte("other"), "user-1", time.Minute)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong key", otherKey},
		{"missing user claim", noUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(secret, tt.token)
			require.ErrorIs(t, err, errs.ErrAuthentication)
		})
	}
}

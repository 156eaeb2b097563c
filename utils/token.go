package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/ridehub/ridehub/errs"
)

// ClaimUserID is the claim carrying the authenticated user's id, shared by REST and the socket.
const ClaimUserID = "user_id"

// GenerateToken signs an HS256 token for userID that expires after ttl.
func GenerateToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		ClaimUserID: userID,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies signature and expiry and returns the user id claim.
func ParseToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrAuthentication, err)
	}
	return UserIDFromToken(token)
}

// UserIDFromToken extracts the user id from an already validated token,
// as stored in fiber locals by the jwt middleware.
func UserIDFromToken(token *jwt.Token) (string, error) {
	if token == nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", errs.ErrAuthentication)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unexpected claims type", errs.ErrAuthentication)
	}
	userID, ok := claims[ClaimUserID].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: missing %s claim", errs.ErrAuthentication, ClaimUserID)
	}
	return userID, nil
}

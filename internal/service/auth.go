package service

import (
	"errors"
	"fmt"
	"time"

	"chatbot-backend/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService resolves identities from the signed token the auth layer puts
// in the widget cookie. Issuing tokens belongs to that layer; SignIdentity
// exists for tooling and tests.
type AuthService struct {
	jwtSecret []byte
}

func NewAuthService(jwtSecret string) *AuthService {
	return &AuthService{jwtSecret: []byte(jwtSecret)}
}

func (s *AuthService) ResolveIdentity(tokenString string) (model.Identity, error) {
	if tokenString == "" {
		return model.Identity{}, ErrInvalidToken
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return model.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return model.Identity{}, ErrInvalidToken
	}

	identity := model.Identity{}
	identity.ID, _ = claims["sub"].(string)
	identity.BusinessID, _ = claims["business_id"].(string)
	identity.DisplayName, _ = claims["name"].(string)
	identity.AvatarURL, _ = claims["avatar"].(string)
	role, _ := claims["role"].(string)
	identity.Role = model.Role(role)

	if identity.ID == "" || identity.BusinessID == "" {
		return model.Identity{}, ErrInvalidToken
	}
	if !identity.Role.Valid() || identity.Role == model.RoleBot {
		identity.Role = model.RoleGuest
	}
	if identity.DisplayName == "" {
		identity.DisplayName = "Guest"
	}
	return identity, nil
}

func (s *AuthService) SignIdentity(identity model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":         identity.ID,
		"role":        string(identity.Role),
		"business_id": identity.BusinessID,
		"name":        identity.DisplayName,
		"avatar":      identity.AvatarURL,
		"iat":         now.Unix(),
		"exp":         now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign identity: %w", err)
	}
	return signed, nil
}

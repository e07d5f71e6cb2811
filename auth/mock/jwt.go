package mock

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// createJWT signs an access token for subject valid for lifetime.
func (s *Server) createJWT(subject string, role string, lifetime time.Duration) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss":  s.URL,
		"sub":  subject,
		"role": role,
		"gen":  s.generation.Load(),
		"jti":  uuid.New().String(),
		"iat":  now.Unix(),
		"exp":  now.Add(lifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.PrivateKey)
}

// verifyJWT returns the subject of a token issued by this server that is
// neither expired nor revoked by Expire.
func (s *Server) verifyJWT(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return &s.PrivateKey.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims")
	}
	gen, _ := claims["gen"].(float64)
	if int64(gen) < s.generation.Load() {
		return "", fmt.Errorf("token generation %v revoked", gen)
	}
	return claims.GetSubject()
}

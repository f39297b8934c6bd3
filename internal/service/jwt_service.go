package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const clientTokenIssuer = "mr-relay"

// JWTService emite y valida tokens de dispositivo para clientes del relay.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time

	revoked TokenRevocationStore
}

type Claims struct {
	ClientID  string `json:"cid"`
	Device    string `json:"device,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
	ErrJWTRevoked = errors.New("jwt revoked")

	errNoRevocationStore = errors.New("token revocation store not configured")
)

func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: clientTokenIssuer,
		now:    time.Now,
	}
}

// WithRevocationStore activa el chequeo de tokens revocados.
func (s *JWTService) WithRevocationStore(store TokenRevocationStore) *JWTService {
	s.revoked = store
	return s
}

// Enabled indica si hay secreto configurado; sin secreto la auth de clientes está apagada.
func (s *JWTService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Issue firma un token de acceso para clientID.
func (s *JWTService) Issue(clientID, device string) (string, error) {
	if !s.Enabled() {
		return "", ErrJWTInvalid
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", ErrJWTInvalid
	}
	now := s.now().UTC()
	claims := Claims{
		ClientID:  clientID,
		Device:    device,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) ParseAccessToken(accessToken string) (Claims, error) {
	if !s.Enabled() {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(accessToken) == "" {
		return Claims{}, ErrJWTInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(accessToken, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	if s.revoked != nil {
		// un error del store no rechaza el token
		revoked, err := s.revoked.IsRevoked(claims.ID)
		if err == nil && revoked {
			return Claims{}, ErrJWTRevoked
		}
	}
	return claims, nil
}

// Revoke invalida un token vigente hasta su expiración.
func (s *JWTService) Revoke(accessToken string) (Claims, error) {
	if s.revoked == nil {
		return Claims{}, errNoRevocationStore
	}
	claims, err := s.ParseAccessToken(accessToken)
	if err != nil {
		return Claims{}, err
	}
	ttl := s.ttl
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(s.now())
	}
	if err := s.revoked.Revoke(claims.ID, ttl); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if claims.TokenType != "access" {
		return false
	}
	if strings.TrimSpace(claims.ClientID) == "" || claims.Subject != claims.ClientID {
		return false
	}
	return claims.Issuer == s.issuer
}

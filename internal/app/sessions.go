package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"
)

// ErrUnauthenticated is returned when a session token is missing or invalid.
var ErrUnauthenticated = errors.New("unauthenticated")

const (
	defaultSessionIssuer = "bluff"
	defaultSessionTTL    = 24 * time.Hour
)

// SessionService issues and verifies HS256 session tokens whose subject is the
// player's user id. With no secret configured it runs in development mode:
// callers identify themselves with a plain user id.
type SessionService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionService(secret string, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionService{
		secret: []byte(secret),
		issuer: defaultSessionIssuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// DevMode reports whether tokens are skipped.
func (s *SessionService) DevMode() bool {
	return s == nil || len(s.secret) == 0
}

// IssueToken signs a session token for userID.
func (s *SessionService) IssueToken(userID string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("session service is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user is required")
	}
	if s.DevMode() {
		return "", fmt.Errorf("session secret is not configured")
	}
	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
		"jti": uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Authenticate resolves the caller's user id. In development mode credential
// is taken as the user id itself; otherwise it must be a valid token.
func (s *SessionService) Authenticate(credential string) (string, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return "", ErrUnauthenticated
	}
	if s.DevMode() {
		return credential, nil
	}

	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !claims.VerifyIssuer(s.issuer, true) {
		return "", ErrUnauthenticated
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrUnauthenticated
	}
	return sub, nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/feedflow/feedflow/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByPhone(ctx context.Context, phone string) (*Employee, error)
}

type authClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and verifies bearer credentials.
type Service struct {
	repo   Repository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{repo: repo, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Authenticate validates phone/password credentials and issues a token.
func (s *Service) Authenticate(ctx context.Context, phone, password string) (Token, error) {
	emp, err := s.repo.FindByPhone(ctx, strings.TrimSpace(phone))
	if err != nil || emp == nil {
		return Token{}, shared.ErrInvalidCredentials
	}
	if !emp.IsActive || !emp.Role.IsValid() {
		return Token{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(emp.PasswordHash), []byte(password)); err != nil {
		return Token{}, shared.ErrInvalidCredentials
	}
	return s.Issue(emp.Actor())
}

// Issue signs a token for actor.
func (s *Service) Issue(actor shared.Actor) (Token, error) {
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := authClaims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.ID, 10),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Token{AccessToken: signed, ExpiresAt: expires, Actor: actor}, nil
}

// Verify parses a bearer credential into the actor it names.
func (s *Service) Verify(token string) (shared.Actor, error) {
	parsed, err := jwt.ParseWithClaims(token, &authClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return shared.Actor{}, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*authClaims)
	if !ok || !parsed.Valid {
		return shared.Actor{}, shared.ErrUnauthorized
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return shared.Actor{}, errors.Join(shared.ErrUnauthorized, errors.New("malformed subject"))
	}
	role, ok := shared.ParseRole(claims.Role)
	if !ok {
		return shared.Actor{}, errors.Join(shared.ErrUnauthorized, fmt.Errorf("unknown role %q", claims.Role))
	}
	return shared.Actor{ID: id, Role: role}, nil
}

// HashPassword returns a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

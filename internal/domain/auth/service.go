package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/domain/validation"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong
// password alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

// RegisterInput holds the fields of a sign-up request.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// Session is a user together with a freshly issued token.
type Session struct {
	User  *user.User
	Token string
}

// Service implements registration, login and token authentication.
type Service struct {
	users  user.Repository
	tokens *TokenIssuer
	now    func() time.Time
}

// NewService creates an auth Service.
func NewService(users user.Repository, tokens *TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens, now: time.Now}
}

// Register creates a customer account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := user.NormalizeEmail(in.Email)

	var c validation.Collector
	if email == "" {
		c.Addf("email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		c.Addf("email must be a valid email address")
	}
	c.Check(len(in.Password) >= MinPasswordLength, "password must be at least 6 characters long")
	c.Check(len(in.Password) <= MaxPasswordBytes, "password must be at most 72 bytes long")
	if err := c.Err(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	u := &user.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.session(u)
}

// Login checks credentials and issues a new token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = user.NormalizeEmail(email)

	var c validation.Collector
	c.Check(email != "", "email is required")
	c.Check(password != "", "password is required")
	if err := c.Err(); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*user.User, error) {
	id, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) session(u *user.User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token}, nil
}

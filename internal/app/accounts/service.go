// Package accounts implements registration and login on top of the user repository.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/knppkp/pollboard/internal/domain"
	"github.com/knppkp/pollboard/internal/platform/ids"
	"github.com/knppkp/pollboard/internal/platform/tokens"
)

var (
	ErrInvalidInput       = errors.New("name, email and password are required")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Service hashes passwords on the way in and issues session tokens on login.
type Service struct {
	users  domain.UserRepository
	tokens *tokens.Issuer
	clock  domain.Clock
	ids    *ids.Generator
}

func NewService(users domain.UserRepository, issuer *tokens.Issuer, clock domain.Clock, idsGen *ids.Generator) *Service {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	return &Service{
		users:  users,
		tokens: issuer,
		clock:  clock,
		ids:    idsGen,
	}
}

func (s *Service) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	if name == "" || email == "" || password == "" {
		return domain.User{}, ErrInvalidInput
	}

	// Pre-check gives the common case a clean answer; the unique index on
	// email catches the race between concurrent registrations.
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return domain.User{}, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("accounts: hash password: %w", err)
	}

	user := domain.User{
		ID:           domain.UserID(s.ids.New()),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	if email == "" || password == "" {
		return domain.User{}, "", ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, "", ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, s.clock.Now())
	if err != nil {
		return domain.User{}, "", err
	}

	user.PasswordHash = ""
	return user, token, nil
}

func (s *Service) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

var _ domain.AccountService = (*Service)(nil)

// Package identity is the boundary to the identity provider: user documents
// with a stable id, name, email, and role, plus the JWTs that carry the id
// between requests.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"classattend/internal/docstore"
)

// Collection holds one document per user.
const Collection = "users"

// Roles a user document may carry.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// ErrUnknownUser is returned when no user document matches.
var ErrUnknownUser = errors.New("unknown user")

// ErrInvalidRole is returned on registration with an unrecognized role.
var ErrInvalidRole = errors.New("role must be teacher or student")

// User is one identity record.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Service registers users and exchanges them for tokens.
type Service struct {
	store      docstore.Store
	issuer     string
	signingKey string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService creates an identity service.
func NewService(store docstore.Store, issuer, signingKey string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		store:      store,
		issuer:     issuer,
		signingKey: signingKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Register creates a user document with a fresh id and issues tokens for it.
// Registering an email that already exists returns the existing user with
// fresh tokens instead of a duplicate.
func (s *Service) Register(ctx context.Context, name, email, role string) (User, TokenPair, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != RoleTeacher && role != RoleStudent {
		return User{}, TokenPair{}, ErrInvalidRole
	}
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return User{}, TokenPair{}, errors.New("name and email required")
	}

	if existing, err := s.byEmail(ctx, email); err == nil {
		tokens, err := Issue(existing.ID, existing.Role, s.issuer, s.signingKey, s.accessTTL, s.refreshTTL)
		return existing, tokens, err
	} else if !errors.Is(err, ErrUnknownUser) {
		return User{}, TokenPair{}, err
	}

	user := User{
		ID:    uuid.NewString(),
		Name:  name,
		Email: email,
		Role:  role,
	}
	if err := s.store.Set(ctx, Collection, user.ID, user); err != nil {
		return User{}, TokenPair{}, err
	}
	log.Printf("registered %s %q", role, email)

	tokens, err := Issue(user.ID, user.Role, s.issuer, s.signingKey, s.accessTTL, s.refreshTTL)
	return user, tokens, err
}

// Login finds the user by email and issues fresh tokens.
func (s *Service) Login(ctx context.Context, email string) (User, TokenPair, error) {
	user, err := s.byEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, TokenPair{}, err
	}
	tokens, err := Issue(user.ID, user.Role, s.issuer, s.signingKey, s.accessTTL, s.refreshTTL)
	return user, tokens, err
}

// User returns the user document for id.
func (s *Service) User(ctx context.Context, id string) (User, error) {
	var user User
	if err := s.store.Get(ctx, Collection, id, &user); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return User{}, ErrUnknownUser
		}
		return User{}, err
	}
	if user.ID == "" {
		user.ID = id
	}
	return user, nil
}

func (s *Service) byEmail(ctx context.Context, email string) (User, error) {
	docs, err := s.store.List(ctx, Collection)
	if err != nil {
		return User{}, err
	}
	for id, raw := range docs {
		var user User
		if err := json.Unmarshal(raw, &user); err != nil {
			continue
		}
		if strings.EqualFold(user.Email, email) {
			if user.ID == "" {
				user.ID = id
			}
			return user, nil
		}
	}
	return User{}, ErrUnknownUser
}

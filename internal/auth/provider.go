package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadCredentials   = errors.New("invalid username or password")
	ErrUserNotFound     = errors.New("user not found")
	ErrUsernameTaken    = errors.New("username already exists")
	ErrInvalidRole      = errors.New("role must be admin, teacher or student")
	ErrInvalidUser      = errors.New("username, name and password are required")
	ErrAdminUndeletable = errors.New("admin users cannot be deleted")
	ErrAdminRoleLocked  = errors.New("admin users keep the admin role")
	ErrWeakPassword     = errors.New("password must be at least 6 characters")
)

// MinPasswordLength applies to password resets.
const MinPasswordLength = 6

// User is an account known to the credential provider.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal returns the identity tokens are issued for.
func (u User) Principal() Principal {
	return Principal{UserID: u.ID, Role: u.Role}
}

// UserRepository persists accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, role Role) ([]User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	DeleteUser(ctx context.Context, id string) error
}

// NewUser is the input for account creation.
type NewUser struct {
	Username string
	Name     string
	Password string
	Role     Role
	Email    string
}

// UserUpdate is the input for profile changes. Every field is replaced.
type UserUpdate struct {
	Name  string
	Role  Role
	Email string
}

// Provider authenticates users and validates their credentials.
type Provider struct {
	users  UserRepository
	signer *Signer
	cost   int
}

// NewProvider wires a provider over a user repository and a token signer.
func NewProvider(users UserRepository, signer *Signer) *Provider {
	return &Provider{users: users, signer: signer, cost: bcrypt.DefaultCost}
}

// Authenticate checks a username/password pair and issues an access token.
func (p *Provider) Authenticate(ctx context.Context, username, password string) (User, Token, error) {
	u, err := p.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUserNotFound) {
		return User{}, Token{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, Token{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, Token{}, ErrBadCredentials
	}
	tok, err := p.signer.Issue(u.Principal())
	if err != nil {
		return User{}, Token{}, fmt.Errorf("issue token: %w", err)
	}
	return u, tok, nil
}

// Validate verifies a bearer credential.
func (p *Provider) Validate(token string) (Principal, error) {
	return p.signer.Parse(token)
}

// CreateUser hashes the password and stores a new account.
func (p *Provider) CreateUser(ctx context.Context, in NewUser) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	if in.Username == "" || in.Name == "" || in.Password == "" {
		return User{}, ErrInvalidUser
	}
	if !in.Role.Valid() {
		return User{}, ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return p.users.CreateUser(ctx, User{
		Username:     in.Username,
		Name:         in.Name,
		Role:         in.Role,
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
	})
}

// GetUser returns an account by id.
func (p *Provider) GetUser(ctx context.Context, id string) (User, error) {
	return p.users.GetUser(ctx, id)
}

// ListUsers returns accounts, optionally restricted to one role.
func (p *Provider) ListUsers(ctx context.Context, role Role) ([]User, error) {
	if role != "" && !role.Valid() {
		return nil, ErrInvalidRole
	}
	return p.users.ListUsers(ctx, role)
}

// UpdateUser replaces the name, role and email of an account. Usernames are
// fixed, and an admin cannot be demoted, which would make it deletable.
func (p *Provider) UpdateUser(ctx context.Context, id string, in UserUpdate) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return User{}, ErrInvalidUser
	}
	if !in.Role.Valid() {
		return User{}, ErrInvalidRole
	}
	u, err := p.users.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u.Role == RoleAdmin && in.Role != RoleAdmin {
		return User{}, ErrAdminRoleLocked
	}
	u.Name = in.Name
	u.Role = in.Role
	u.Email = strings.TrimSpace(in.Email)
	return p.users.UpdateUser(ctx, u)
}

// ResetPassword replaces the password of an account. Tokens already issued
// stay valid until they expire.
func (p *Provider) ResetPassword(ctx context.Context, id, password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if _, err := p.users.GetUser(ctx, id); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := p.users.SetPasswordHash(ctx, id, string(hash)); err != nil {
		return err
	}
	log.Printf("password reset for user %s", id)
	return nil
}

// DeleteUser removes a non-admin account.
func (p *Provider) DeleteUser(ctx context.Context, id string) error {
	u, err := p.users.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u.Role == RoleAdmin {
		return ErrAdminUndeletable
	}
	return p.users.DeleteUser(ctx, id)
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
func (p *Provider) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := p.users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if _, err := p.CreateUser(ctx, NewUser{Username: username, Name: "Administrator", Password: password, Role: RoleAdmin}); err != nil {
		return err
	}
	log.Printf("bootstrap admin %q created", username)
	return nil
}

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAnonymous       = errors.New("user is not anonymous")
	ErrUnknownUser        = errors.New("token refers to an unknown user")
)

// AnonymousEmailDomain is the domain of generated anonymous accounts.
const AnonymousEmailDomain = "explorers.club"

// UserStore is the part of the database the provider needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUserCredentials(ctx context.Context, id, email, passwordHash string) error
}

// Provider signs users up and in and resumes sessions from tokens.
type Provider struct {
	users  UserStore
	tokens *Issuer
	params Params
	log    *logrus.Logger
}

func NewProvider(users UserStore, tokens *Issuer, params Params, logger *logrus.Logger) *Provider {
	return &Provider{users: users, tokens: tokens, params: params, log: logger}
}

// SignUpAnonymous creates a passwordless user with a random address and
// returns its id and tokens.
func (p *Provider) SignUpAnonymous(ctx context.Context) (string, models.AuthTokens, error) {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", models.AuthTokens{}, fmt.Errorf("anonymous suffix: %w", err)
	}
	user := &models.User{
		ID:          models.NewSnowflakeID(),
		Email:       fmt.Sprintf("anon-%s@%s", hex.EncodeToString(suffix), AnonymousEmailDomain),
		IsAnonymous: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.users.CreateUser(ctx, user); err != nil {
		return "", models.AuthTokens{}, fmt.Errorf("failed to create anonymous user: %w", err)
	}
	tokens, err := p.tokens.Issue(user.ID)
	if err != nil {
		return "", models.AuthTokens{}, err
	}
	p.log.WithField("user_id", user.ID).Debug("anonymous user created")
	return user.ID, tokens, nil
}

// SetSession resumes a session from a token pair. When only the access token
// has expired the pair is rotated and the new tokens are returned.
func (p *Provider) SetSession(ctx context.Context, tokens models.AuthTokens) (string, models.AuthTokens, error) {
	userID, err := p.tokens.Verify(tokens.AccessToken, AccessToken)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired):
		userID, err = p.tokens.Verify(tokens.RefreshToken, RefreshToken)
		if err != nil {
			return "", models.AuthTokens{}, fmt.Errorf("refresh session: %w", err)
		}
		tokens, err = p.tokens.Issue(userID)
		if err != nil {
			return "", models.AuthTokens{}, err
		}
		p.log.WithField("user_id", userID).Debug("session tokens rotated")
	default:
		return "", models.AuthTokens{}, err
	}

	if _, err := p.users.GetUserByID(ctx, userID); err != nil {
		return "", models.AuthTokens{}, fmt.Errorf("%w: %v", ErrUnknownUser, err)
	}
	return userID, tokens, nil
}

// SignUp registers a user with email and password.
func (p *Provider) SignUp(ctx context.Context, in models.LoginInput) (*models.User, models.AuthTokens, error) {
	if err := models.ValidateStruct(in); err != nil {
		return nil, models.AuthTokens{}, err
	}
	hash, err := HashPassword(in.Password, p.params)
	if err != nil {
		return nil, models.AuthTokens{}, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{
		ID:        models.NewSnowflakeID(),
		Email:     in.Email,
		Password:  hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.users.CreateUser(ctx, user); err != nil {
		return nil, models.AuthTokens{}, err
	}
	tokens, err := p.tokens.Issue(user.ID)
	if err != nil {
		return nil, models.AuthTokens{}, err
	}
	return user, tokens, nil
}

// SignIn checks email and password and issues tokens.
func (p *Provider) SignIn(ctx context.Context, in models.LoginInput) (models.AuthTokens, error) {
	if err := models.ValidateStruct(in); err != nil {
		return models.AuthTokens{}, err
	}
	user, err := p.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return models.AuthTokens{}, ErrInvalidCredentials
	}
	if user.Password == "" {
		return models.AuthTokens{}, ErrInvalidCredentials
	}
	ok, err := VerifyPassword(in.Password, user.Password)
	if err != nil || !ok {
		return models.AuthTokens{}, ErrInvalidCredentials
	}
	return p.tokens.Issue(user.ID)
}

// ClaimAnonymous turns the anonymous user behind accessToken into a regular
// account. The user id and therefore its sessions and rooms are kept.
func (p *Provider) ClaimAnonymous(ctx context.Context, accessToken string, in models.LoginInput) (models.AuthTokens, error) {
	if err := models.ValidateStruct(in); err != nil {
		return models.AuthTokens{}, err
	}
	userID, err := p.tokens.Verify(accessToken, AccessToken)
	if err != nil {
		return models.AuthTokens{}, err
	}
	user, err := p.users.GetUserByID(ctx, userID)
	if err != nil {
		return models.AuthTokens{}, fmt.Errorf("%w: %v", ErrUnknownUser, err)
	}
	if !user.IsAnonymous {
		return models.AuthTokens{}, ErrNotAnonymous
	}
	hash, err := HashPassword(in.Password, p.params)
	if err != nil {
		return models.AuthTokens{}, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := p.users.UpdateUserCredentials(ctx, userID, in.Email, hash); err != nil {
		return models.AuthTokens{}, err
	}
	return p.tokens.Issue(userID)
}

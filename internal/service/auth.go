package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/grievance-portal/internal/limiter"
	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/repository"
	"github.com/iliyamo/grievance-portal/internal/utils"
)

// AuthService registers identities and exchanges credentials for access
// tokens.  Failed logins are throttled per email by the limiter.
type AuthService struct {
	users   UserStore
	signer  *utils.TokenSigner
	limiter limiter.Limiter
	cost    int
	log     *slog.Logger
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users UserStore, signer *utils.TokenSigner, l limiter.Limiter, bcryptCost int, log *slog.Logger) *AuthService {
	return &AuthService{
		users:   users,
		signer:  signer,
		limiter: l,
		cost:    bcryptCost,
		log:     log.With("component", "auth"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput is the data needed to create an identity.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// Register creates an active, non-admin identity.  The email is trimmed
// but otherwise stored as given.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	return s.create(ctx, in, false)
}

func (s *AuthService) create(ctx context.Context, in RegisterInput, admin bool) (model.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return model.User{}, invalid("email and password are required")
	}
	if len(in.Password) > utils.MaxPasswordBytes {
		return model.User{}, invalid("password must be at most %d bytes", utils.MaxPasswordBytes)
	}
	hash, err := utils.HashPassword(in.Password, s.cost)
	if err != nil {
		return model.User{}, err
	}
	now := s.now()
	u := model.User{
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, invalid("email already registered")
		}
		return model.User{}, err
	}
	s.log.Info("user registered", "user_id", u.ID, "admin", admin)
	return u, nil
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token utils.AccessToken
	User  model.User
}

// Login verifies the credentials.  Every attempt reserves a slot in the
// limiter before the password is compared, so a parallel burst is cut off
// at the limit.  While the email has reached the limit inside the window
// it fails with *RateLimitError without recording anything.  Success
// clears the history; any other outcome leaves the attempt counted.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	now := s.now()

	d, err := s.limiter.CheckAndRecord(ctx, email, now)
	if err != nil {
		// the limiter backend is down; let the attempt through
		s.log.Warn("login limiter unavailable", "err", err)
	} else if !d.Allowed {
		s.log.Info("login throttled", "attempts", d.Count)
		return LoginResult{}, &RateLimitError{RetryAfter: d.RetryAfter}
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return LoginResult{}, err
	}
	found := err == nil
	hash := u.PasswordHash
	if !found {
		// keep timing close to a real comparison
		hash = s.fakeHash()
	}
	if !utils.VerifyPassword(hash, password) || !found {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return LoginResult{}, ErrAccountDisabled
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.log.Warn("reset login attempts", "err", err)
	}
	tok, err := s.signer.Issue(strconv.FormatUint(u.ID, 10), u.Email)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: tok, User: u}, nil
}

func (s *AuthService) fakeHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = utils.HashPassword("not-a-real-password", s.cost)
	})
	return s.dummyHash
}

// BootstrapAdmin creates an admin identity unless the email is already
// registered.  It reports whether a new identity was created.
func (s *AuthService) BootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	if _, err := s.users.GetByEmail(ctx, strings.TrimSpace(email)); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	if _, err := s.create(ctx, RegisterInput{Email: email, Password: password, FullName: "Administrator"}, true); err != nil {
		if errors.Is(err, ErrValidation) {
			// registered concurrently
			return false, nil
		}
		return false, err
	}
	return true, nil
}

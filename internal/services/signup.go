package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sbilibin2017/gw-user-signup/internal/logger"
	"github.com/sbilibin2017/gw-user-signup/internal/models"
	"github.com/sbilibin2017/gw-user-signup/internal/validators"
)

//go:generate mockgen -source=signup.go -destination=mock_signup.go -package=services

// StorePinger verifies that the user store is reachable.
type StorePinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// UserReader defines read-only operations for users.
type UserReader interface {
	// GetByUsernameOrEmail returns the first user whose username or email matches,
	// or nil when there is none.
	GetByUsernameOrEmail(ctx context.Context, username, email string) (*models.UserDB, error)
}

// UserWriter defines write operations for users.
type UserWriter interface {
	// Save inserts user and returns the store-assigned identifier.
	Save(ctx context.Context, user *models.UserDB) (string, error)
}

// PasswordHasher turns a plaintext password into the value kept in the store.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Notifier sends an email.
type Notifier interface {
	Send(ctx context.Context, subject, body, from string, to []string) error
}

// EventPublisher announces a completed registration.
type EventPublisher interface {
	Publish(ctx context.Context, event models.UserRegisteredEvent) error
}

// DefaultNotifyTimeout bounds the welcome email and registration event when
// Config.NotifyTimeout is not set.
const DefaultNotifyTimeout = 10 * time.Second

// Config holds the read-only settings used during signup.
type Config struct {
	// FromEmail is the sender address of the welcome email.
	FromEmail string
	// NotifyTimeout bounds delivery of the welcome email and registration event.
	NotifyTimeout time.Duration
}

// SignupService registers new users.
//
// The duplicate check and the insert are two separate store calls. Two concurrent
// signups for the same identity may both pass the check and both be inserted.
type SignupService struct {
	cfg       Config
	pinger    StorePinger
	reader    UserReader
	writer    UserWriter
	hasher    PasswordHasher
	notifier  Notifier
	publisher EventPublisher
	now       func() time.Time
	pending   sync.WaitGroup
}

// NewSignupService creates a new SignupService instance. publisher may be nil.
func NewSignupService(
	cfg Config,
	pinger StorePinger,
	reader UserReader,
	writer UserWriter,
	hasher PasswordHasher,
	notifier Notifier,
	publisher EventPublisher,
) *SignupService {
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	return &SignupService{
		cfg:       cfg,
		pinger:    pinger,
		reader:    reader,
		writer:    writer,
		hasher:    hasher,
		notifier:  notifier,
		publisher: publisher,
		now:       time.Now,
	}
}

// Signup validates req, stores a new user and starts sending the welcome email.
// It returns the identifier of the new user without waiting for delivery.
func (svc *SignupService) Signup(ctx context.Context, req models.SignupRequest) (string, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if err := validate(username, email, req.Password); err != nil {
		return "", err
	}

	if err := svc.pinger.Ping(ctx); err != nil {
		logger.Log.Errorw("user store is unreachable", "store", svc.pinger.Name(), "err", err)
		return "", &StoreConnectError{Store: svc.pinger.Name(), Err: err}
	}

	existing, err := svc.reader.GetByUsernameOrEmail(ctx, username, email)
	if err != nil {
		logger.Log.Errorw("failed to check user exists", "err", err)
		return "", fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		logger.Log.Warnw("user already exists", "username", username, "email", email)
		return "", ErrUserAlreadyExists
	}

	hashedPassword, err := svc.hasher.Hash(req.Password)
	if err != nil {
		logger.Log.Errorw("failed to hash password", "err", err)
		return "", fmt.Errorf("hash password: %w", err)
	}

	user := &models.UserDB{
		Username:  username,
		Email:     email,
		Password:  hashedPassword,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		CreatedAt: svc.now().UTC(),
		IsActive:  true,
	}

	userID, err := svc.writer.Save(ctx, user)
	if err != nil {
		logger.Log.Errorw("failed to save user", "err", err)
		return "", fmt.Errorf("save user: %w", err)
	}
	user.UserID = userID

	svc.pending.Add(1)
	go func() {
		defer svc.pending.Done()

		// The user is stored; the request ending must not cancel delivery.
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), svc.cfg.NotifyTimeout)
		defer cancel()

		svc.notify(bgCtx, user)
		svc.publish(bgCtx, user)
	}()

	logger.Log.Infow("user registered", "user_id", userID, "username", username)
	return userID, nil
}

// Wait blocks until every welcome email and registration event started by
// Signup has been delivered or has timed out.
func (svc *SignupService) Wait() {
	svc.pending.Wait()
}

func (svc *SignupService) notify(ctx context.Context, user *models.UserDB) {
	err := svc.notifier.Send(ctx, WelcomeSubject, WelcomeBody(user), svc.cfg.FromEmail, []string{user.Email})
	if err != nil {
		logger.Log.Errorw("error sending email", "user_id", user.UserID, "email", user.Email, "err", err)
	}
}

func (svc *SignupService) publish(ctx context.Context, user *models.UserDB) {
	if svc.publisher == nil {
		return
	}
	event := models.UserRegisteredEvent{
		UserID:    user.UserID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
	if err := svc.publisher.Publish(ctx, event); err != nil {
		logger.Log.Errorw("error publishing registration event", "user_id", user.UserID, "err", err)
	}
}

// validate applies the signup field checks in order and returns the first failure.
func validate(username, email, password string) error {
	switch {
	case username == "":
		return &ValidationError{Field: "username", Message: MsgUsernameRequired}
	case email == "":
		return &ValidationError{Field: "email", Message: MsgEmailRequired}
	case !validators.ValidateEmail(email):
		return &ValidationError{Field: "email", Message: MsgInvalidEmail}
	case password == "":
		return &ValidationError{Field: "password", Message: MsgPasswordRequired}
	case !validators.ValidatePassword(password):
		return &ValidationError{Field: "password", Message: MsgPasswordTooShort}
	}
	return nil
}

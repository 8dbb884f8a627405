package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/budgetblitz/budgetblitz/internal/codes"
	"github.com/budgetblitz/budgetblitz/internal/shared"
	"github.com/budgetblitz/budgetblitz/internal/token"
	"github.com/budgetblitz/budgetblitz/internal/users"
)

// CodeStore issues and redeems one-time codes.
type CodeStore interface {
	IssueAndStore(ctx context.Context, userID int64, purpose codes.Purpose) (codes.Issued, error)
	Consume(ctx context.Context, purpose codes.Purpose, plain string, onConsumed func(context.Context, codes.Code) error) (codes.Code, error)
	Redeem(ctx context.Context, id int64, purpose codes.Purpose, userID int64, onRedeemed func(context.Context) error) error
}

// Service wraps registration, activation and login rules.
type Service struct {
	users    UserRepository
	codes    CodeStore
	tokens   *token.Service
	hasher   Hasher
	notifier Notifier
	events   EventRecorder
	logger   *slog.Logger

	// dummyHash is compared against when the email is unknown so both login
	// failures cost one bcrypt verification.
	dummyHash string
}

// Option customises the Service.
type Option func(*Service)

// WithEvents records auth outcomes.
func WithEvents(rec EventRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.events = rec
		}
	}
}

// NewService constructs a new Service.
func NewService(repo UserRepository, store CodeStore, tokens *token.Service, hasher Hasher, notifier Notifier, logger *slog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dummy, err := hasher.Hash("budgetblitz-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("auth: dummy hash: %w", err)
	}
	s := &Service{
		users:     repo,
		codes:     store,
		tokens:    tokens,
		hasher:    hasher,
		notifier:  notifier,
		events:    noopRecorder{},
		logger:    logger,
		dummyHash: dummy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a disabled, unverified account and mails an activation
// code. If the mail cannot be queued the account is kept and
// EMAIL_SENDING_FAILED is returned; ResendActivationCode is the retry path.
func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	if err := shared.CheckPasswordConfirmation(req); err != nil {
		return err
	}
	email := shared.NormalizeEmail(req.Email)
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return shared.NewError(shared.CodeEmailAlreadyExists)
	}
	dob, err := time.Parse(shared.DateLayout, req.DateOfBirth)
	if err != nil {
		return shared.WrapError(shared.CodeValidationFailed, err).WithDetail("dateOfBirth must be YYYY-MM-DD")
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return err
	}

	user := users.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        email,
		DateOfBirth:  dob,
		PasswordHash: hash,
	}
	id, err := s.users.Create(ctx, user, shared.DefaultRoles())
	if err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return shared.WrapError(shared.CodeEmailAlreadyExists, err)
		}
		return err
	}
	user.ID = id
	s.logger.Info("user registered", slog.Int64("user_id", id))
	s.events.AuthEvent("register", "ok")

	return s.sendActivation(ctx, user)
}

// ActivateAccount redeems an activation code and enables its account in the
// same transaction. An expired code is replaced by a freshly mailed one.
func (s *Service) ActivateAccount(ctx context.Context, plain string) error {
	code, err := s.codes.Consume(ctx, codes.PurposeActivation, plain, func(ctx context.Context, c codes.Code) error {
		return s.users.MarkVerified(ctx, c.UserID)
	})
	switch {
	case err == nil:
		s.logger.Info("account activated", slog.Int64("user_id", code.UserID))
		s.events.AuthEvent("activate", "ok")
		return nil
	case errors.Is(err, codes.ErrExpired):
		s.events.AuthEvent("activate", "expired")
		s.reissue(ctx, code.UserID, codes.PurposeActivation)
		return shared.NewError(shared.CodeExpiredActivationCode)
	case errors.Is(err, codes.ErrAlreadyConsumed):
		return shared.NewError(shared.CodeEmailAlreadyVerified)
	case errors.Is(err, codes.ErrNotFound):
		s.events.AuthEvent("activate", "not_found")
		return shared.NewError(shared.CodeTokenNotFound)
	case errors.Is(err, users.ErrNotFound):
		return shared.WrapError(shared.CodeUserNotFound, err)
	default:
		return err
	}
}

// Login checks credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (token.Pair, error) {
	user, err := s.users.FindByEmail(ctx, shared.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			return token.Pair{}, err
		}
		s.hasher.Verify(s.dummyHash, password)
		s.events.AuthEvent("login", "bad_credentials")
		return token.Pair{}, shared.NewError(shared.CodeBadCredentials)
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		s.events.AuthEvent("login", "bad_credentials")
		return token.Pair{}, shared.NewError(shared.CodeBadCredentials)
	}
	if !user.EmailVerified {
		s.events.AuthEvent("login", "not_verified")
		return token.Pair{}, shared.NewError(shared.CodeAccountNotVerified)
	}
	pair, err := s.tokens.IssuePair(user.Email)
	if err != nil {
		return token.Pair{}, err
	}
	s.events.AuthEvent("login", "ok")
	return pair, nil
}

// Refresh mints a new access token and hands back the same refresh token.
func (s *Service) Refresh(_ context.Context, refreshToken string) (token.Pair, error) {
	access, err := s.tokens.RefreshAccessToken(refreshToken)
	if err != nil {
		s.events.AuthEvent("refresh", string(shared.CodeOf(err)))
		return token.Pair{}, err
	}
	s.events.AuthEvent("refresh", "ok")
	return token.Pair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// ResendActivationCode mails a new activation code to an unverified account.
func (s *Service) ResendActivationCode(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return shared.NewError(shared.CodeEmailAlreadyVerified)
	}
	return s.sendActivation(ctx, user)
}

func (s *Service) sendActivation(ctx context.Context, user users.User) error {
	issued, err := s.codes.IssueAndStore(ctx, user.ID, codes.PurposeActivation)
	if err != nil {
		return err
	}
	if err := s.notifier.SendActivationCode(ctx, recipientOf(user), issued.Plain); err != nil {
		s.logger.Warn("activation mail not queued", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return shared.WrapError(shared.CodeEmailSendingFailed, err)
	}
	return nil
}

// reissue replaces an expired code. Delivery failures are logged only; the
// caller still reports the expiry.
func (s *Service) reissue(ctx context.Context, userID int64, purpose codes.Purpose) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("code reissue skipped", slog.Int64("user_id", userID), slog.Any("error", err))
		return
	}
	issued, err := s.codes.IssueAndStore(ctx, user.ID, purpose)
	if err != nil {
		s.logger.Error("code reissue failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return
	}
	send := s.notifier.SendActivationCode
	if purpose == codes.PurposePasswordReset {
		send = s.notifier.SendResetCode
	}
	if err := send(ctx, recipientOf(user), issued.Plain); err != nil {
		s.logger.Warn("reissued code mail not queued", slog.Int64("user_id", userID), slog.Any("error", err))
		return
	}
	s.logger.Info("expired code reissued", slog.Int64("user_id", userID), slog.String("purpose", string(purpose)))
}

func (s *Service) findByEmail(ctx context.Context, email string) (users.User, error) {
	user, err := s.users.FindByEmail(ctx, shared.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return users.User{}, shared.WrapError(shared.CodeUserEmailNotFound, err)
		}
		return users.User{}, err
	}
	return user, nil
}

func recipientOf(u users.User) Recipient {
	return Recipient{Email: u.Email, FullName: u.FullName()}
}

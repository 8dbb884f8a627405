package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/budgetblitz/budgetblitz/internal/codes"
	"github.com/budgetblitz/budgetblitz/internal/shared"
	"github.com/budgetblitz/budgetblitz/internal/token"
)

// ForgotPassword mails a password reset code to a registered email.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	issued, err := s.codes.IssueAndStore(ctx, user.ID, codes.PurposePasswordReset)
	if err != nil {
		return err
	}
	if err := s.notifier.SendResetCode(ctx, recipientOf(user), issued.Plain); err != nil {
		s.logger.Warn("reset mail not queued", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return shared.WrapError(shared.CodeEmailSendingFailed, err)
	}
	s.events.AuthEvent("forgot_password", "ok")
	return nil
}

// VerifyResetCode redeems a reset code and returns a signed grant that
// ResetPassword requires. Account flags are left untouched.
func (s *Service) VerifyResetCode(ctx context.Context, plain string) (string, error) {
	code, err := s.codes.Consume(ctx, codes.PurposePasswordReset, plain, nil)
	switch {
	case err == nil:
	case errors.Is(err, codes.ErrExpired):
		s.events.AuthEvent("verify_reset_code", "expired")
		s.reissue(ctx, code.UserID, codes.PurposePasswordReset)
		return "", shared.NewError(shared.CodeExpiredResetCode)
	case errors.Is(err, codes.ErrAlreadyConsumed):
		return "", shared.NewError(shared.CodeResetCodeAlreadyVerified)
	case errors.Is(err, codes.ErrNotFound):
		s.events.AuthEvent("verify_reset_code", "not_found")
		return "", shared.NewError(shared.CodeTokenNotFound)
	default:
		return "", err
	}

	user, err := s.users.FindByID(ctx, code.UserID)
	if err != nil {
		return "", err
	}
	grant, err := s.tokens.IssueResetGrant(user.Email, code.ID)
	if err != nil {
		return "", err
	}
	s.events.AuthEvent("verify_reset_code", "ok")
	return grant, nil
}

// ResetPassword replaces the password of the account named by a reset grant
// and logs the user in. A grant changes the password at most once.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (token.Pair, error) {
	if err := shared.CheckPasswordConfirmation(req); err != nil {
		return token.Pair{}, err
	}
	email := shared.NormalizeEmail(req.Email)
	grant, err := s.tokens.ParseResetGrant(req.ResetToken)
	if err != nil {
		return token.Pair{}, err
	}
	if grant.Email != email {
		return token.Pair{}, shared.NewError(shared.CodeInvalidResetGrant).WithDetail("grant issued for another account")
	}
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return token.Pair{}, err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return token.Pair{}, err
	}
	err = s.codes.Redeem(ctx, grant.CodeID, codes.PurposePasswordReset, user.ID, func(ctx context.Context) error {
		return s.users.UpdatePassword(ctx, user.ID, hash)
	})
	switch {
	case err == nil:
	case errors.Is(err, codes.ErrNotFound), errors.Is(err, codes.ErrAlreadyRedeemed):
		s.events.AuthEvent("reset_password", "invalid_grant")
		return token.Pair{}, shared.WrapError(shared.CodeInvalidResetGrant, err)
	default:
		return token.Pair{}, err
	}
	s.logger.Info("password reset", slog.Int64("user_id", user.ID))
	s.events.AuthEvent("reset_password", "ok")
	return s.tokens.IssuePair(user.Email)
}

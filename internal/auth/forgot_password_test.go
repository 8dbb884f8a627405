package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/budgetblitz/budgetblitz/internal/codes"
	"github.com/budgetblitz/budgetblitz/internal/shared"
)

func TestForgotPasswordUnknownEmail(t *testing.T) {
	f := newFixture(t)
	err := f.service.ForgotPassword(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, shared.NewError(shared.CodeUserEmailNotFound))
}

func TestVerifyResetCodeTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t, "alice@example.com")

	require.NoError(t, f.service.ForgotPassword(ctx, "alice@example.com"))
	code := f.notifier.last(t, "reset").code
	require.Len(t, code, codes.Length)

	grant, err := f.service.VerifyResetCode(ctx, code)
	require.NoError(t, err)
	require.NotEmpty(t, grant)

	_, err = f.service.VerifyResetCode(ctx, code)
	require.ErrorIs(t, err, shared.NewError(shared.CodeResetCodeAlreadyVerified))
}

func TestVerifyResetCodeLeavesAccountFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerActive(t, "alice@example.com")
	f.users.SetEnabled(user.ID, false)

	require.NoError(t, f.service.ForgotPassword(ctx, "alice@example.com"))
	_, err := f.service.VerifyResetCode(ctx, f.notifier.last(t, "reset").code)
	require.NoError(t, err)
	require.False(t, f.users.byEmail(t, "alice@example.com").Enabled)
}

func TestActivationCodeCannotResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.Register(ctx, validRegistration("alice@example.com")))

	_, err := f.service.VerifyResetCode(ctx, f.notifier.last(t, "activation").code)
	require.ErrorIs(t, err, shared.NewError(shared.CodeTokenNotFound))
}

func TestExpiredResetCodeIssuesReplacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerActive(t, "alice@example.com")
	require.NoError(t, f.service.ForgotPassword(ctx, "alice@example.com"))
	stale := f.notifier.last(t, "reset").code

	f.clock.Advance(codes.DefaultTTL + time.Minute)

	_, err := f.service.VerifyResetCode(ctx, stale)
	require.ErrorIs(t, err, shared.NewError(shared.CodeExpiredResetCode))
	require.Equal(t, 2, f.codes.count(user.ID, codes.PurposePasswordReset))
	require.Equal(t, 2, f.notifier.count("reset"))
}

func TestResetPasswordFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t, "alice@example.com")
	require.NoError(t, f.service.ForgotPassword(ctx, "alice@example.com"))
	grant, err := f.service.VerifyResetCode(ctx, f.notifier.last(t, "reset").code)
	require.NoError(t, err)

	pair, err := f.service.ResetPassword(ctx, ResetPasswordRequest{
		Email:           "alice@example.com",
		ResetToken:      grant,
		NewPassword:     "Fresh#Secret9",
		ConfirmPassword: "Fresh#Secret9",
	})
	require.NoError(t, err)
	require.True(t, f.tokens.IsValid(pair.AccessToken))

	_, err = f.service.Login(ctx, "alice@example.com", "New#Strong1")
	require.ErrorIs(t, err, shared.NewError(shared.CodeBadCredentials))
	_, err = f.service.Login(ctx, "alice@example.com", "Fresh#Secret9")
	require.NoError(t, err)
}

func TestResetPasswordRequiresGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t, "alice@example.com")
	f.registerActive(t, "bob@example.com")

	base := ResetPasswordRequest{
		Email:           "alice@example.com",
		NewPassword:     "Fresh#Secret9",
		ConfirmPassword: "Fresh#Secret9",
	}

	t.Run("missing grant", func(t *testing.T) {
		_, err := f.service.ResetPassword(ctx, base)
		require.ErrorIs(t, err, shared.NewError(shared.CodeInvalidResetGrant))
	})

	t.Run("access token is not a grant", func(t *testing.T) {
		pair, err := f.service.Login(ctx, "alice@example.com", "New#Strong1")
		require.NoError(t, err)
		req := base
		req.ResetToken = pair.AccessToken
		_, err = f.service.ResetPassword(ctx, req)
		require.ErrorIs(t, err, shared.NewError(shared.CodeInvalidResetGrant))
	})

	t.Run("grant for another account", func(t *testing.T) {
		require.NoError(t, f.service.ForgotPassword(ctx, "bob@example.com"))
		grant, err := f.service.VerifyResetCode(ctx, f.notifier.last(t, "reset").code)
		require.NoError(t, err)
		req := base
		req.ResetToken = grant
		_, err = f.service.ResetPassword(ctx, req)
		require.ErrorIs(t, err, shared.NewError(shared.CodeInvalidResetGrant))
	})

	t.Run("expired grant", func(t *testing.T) {
		require.NoError(t, f.service.ForgotPassword(ctx, "alice@example.com"))
		grant, err := f.service.VerifyResetCode(ctx, f.notifier.last(t, "reset").code)
		require.NoError(t, err)
		f.clock.Advance(11 * time.Minute)
		req := base
		req.ResetToken = grant
		_, err = f.service.ResetPassword(ctx, req)
		require.ErrorIs(t, err, shared.NewError(shared.CodeInvalidResetGrant))
	})

	t.Run("mismatch checked first", func(t *testing.T) {
		req := base
		req.ConfirmPassword = "Other#Secret9"
		_, err := f.service.ResetPassword(ctx, req)
		require.ErrorIs(t, err, shared.NewError(shared.CodePasswordMismatch))
	})
}

func TestResetGrantIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t, "alice@example.com")
	require.NoError(t, f.service.ForgotPassword(ctx, "alice@example.com"))
	grant, err := f.service.VerifyResetCode(ctx, f.notifier.last(t, "reset").code)
	require.NoError(t, err)

	_, err = f.service.ResetPassword(ctx, ResetPasswordRequest{
		Email:           "alice@example.com",
		ResetToken:      grant,
		NewPassword:     "Fresh#Secret9",
		ConfirmPassword: "Fresh#Secret9",
	})
	require.NoError(t, err)

	_, err = f.service.ResetPassword(ctx, ResetPasswordRequest{
		Email:           "alice@example.com",
		ResetToken:      grant,
		NewPassword:     "Second#Secret9",
		ConfirmPassword: "Second#Secret9",
	})
	require.ErrorIs(t, err, shared.NewError(shared.CodeInvalidResetGrant))

	_, err = f.service.Login(ctx, "alice@example.com", "Second#Secret9")
	require.ErrorIs(t, err, shared.NewError(shared.CodeBadCredentials))
	_, err = f.service.Login(ctx, "alice@example.com", "Fresh#Secret9")
	require.NoError(t, err)
}

package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/budgetblitz/budgetblitz/internal/codes"
	"github.com/budgetblitz/budgetblitz/internal/shared"
)

func TestRegisterCreatesDisabledUnverifiedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.Register(ctx, validRegistration("Alice@Example.com")))

	user := f.users.byEmail(t, "alice@example.com")
	require.Equal(t, "alice@example.com", user.Email)
	require.False(t, user.Enabled)
	require.False(t, user.EmailVerified)
	require.Equal(t, []string{shared.AuthorityUser}, user.Roles)
	require.NotEqual(t, "New#Strong1", user.PasswordHash)

	mail := f.notifier.last(t, "activation")
	require.Regexp(t, regexp.MustCompile(`^\d{6}$`), mail.code)
	require.Equal(t, "Alice Walker", mail.to.FullName)
	require.Equal(t, 1, f.codes.count(user.ID, codes.PurposeActivation))
}

func TestRegisterDuplicateEmailCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.Register(ctx, validRegistration("alice@example.com")))
	err := f.service.Register(ctx, validRegistration("ALICE@example.COM"))
	require.ErrorIs(t, err, shared.NewError(shared.CodeEmailAlreadyExists))
}

func TestRegisterPasswordMismatchPersistsNothing(t *testing.T) {
	f := newFixture(t)
	req := validRegistration("alice@example.com")
	req.ConfirmPassword = "Other#Strong1"

	err := f.service.Register(context.Background(), req)
	require.ErrorIs(t, err, shared.NewError(shared.CodePasswordMismatch))

	exists, err := f.users.ExistsByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.False(t, exists)
	require.Zero(t, f.notifier.count("activation"))
}

func TestRegisterMailFailureKeepsUser(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("queue down")

	err := f.service.Register(context.Background(), validRegistration("alice@example.com"))
	require.ErrorIs(t, err, shared.NewError(shared.CodeEmailSendingFailed))

	user := f.users.byEmail(t, "alice@example.com")
	require.False(t, user.EmailVerified)

	f.notifier.err = nil
	require.NoError(t, f.service.ResendActivationCode(context.Background(), "alice@example.com"))
	require.NoError(t, f.service.ActivateAccount(context.Background(), f.notifier.last(t, "activation").code))
}

func TestActivateAccountExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.Register(ctx, validRegistration("alice@example.com")))
	code := f.notifier.last(t, "activation").code

	require.NoError(t, f.service.ActivateAccount(ctx, code))
	user := f.users.byEmail(t, "alice@example.com")
	require.True(t, user.Enabled)
	require.True(t, user.EmailVerified)

	err := f.service.ActivateAccount(ctx, code)
	require.ErrorIs(t, err, shared.NewError(shared.CodeEmailAlreadyVerified))
}

func TestActivateAccountUnknownCode(t *testing.T) {
	f := newFixture(t)
	err := f.service.ActivateAccount(context.Background(), "000000")
	require.ErrorIs(t, err, shared.NewError(shared.CodeTokenNotFound))
}

func TestActivateAccountConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.Register(ctx, validRegistration("alice@example.com")))
	code := f.notifier.last(t, "activation").code

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.service.ActivateAccount(ctx, code)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, shared.NewError(shared.CodeEmailAlreadyVerified))
	}
	require.Equal(t, 1, wins)
}

func TestExpiredActivationCodeIssuesExactlyOneReplacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.Register(ctx, validRegistration("alice@example.com")))
	user := f.users.byEmail(t, "alice@example.com")
	stale := f.notifier.last(t, "activation").code

	f.clock.Advance(codes.DefaultTTL + time.Second)

	err := f.service.ActivateAccount(ctx, stale)
	require.ErrorIs(t, err, shared.NewError(shared.CodeExpiredActivationCode))
	require.Equal(t, 2, f.codes.count(user.ID, codes.PurposeActivation))
	require.Equal(t, 2, f.notifier.count("activation"))

	fresh := f.notifier.last(t, "activation").code
	require.NoError(t, f.service.ActivateAccount(ctx, fresh))
	require.True(t, f.users.byEmail(t, "alice@example.com").EmailVerified)
}

func TestLoginIssuesPairForEmail(t *testing.T) {
	f := newFixture(t)
	f.registerActive(t, "alice@example.com")

	pair, err := f.service.Login(context.Background(), "alice@example.com", "New#Strong1")
	require.NoError(t, err)

	subject, err := f.tokens.ExtractSubject(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", subject)
	require.True(t, f.tokens.IsValid(pair.AccessToken))
	require.True(t, f.tokens.IsValid(pair.RefreshToken))
}

func TestLoginBeforeActivationIsRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.Register(context.Background(), validRegistration("alice@example.com")))

	_, err := f.service.Login(context.Background(), "alice@example.com", "New#Strong1")
	require.ErrorIs(t, err, shared.NewError(shared.CodeAccountNotVerified))
}

func TestLoginBadCredentialsUniform(t *testing.T) {
	f := newFixture(t)
	f.registerActive(t, "alice@example.com")

	_, wrongPassword := f.service.Login(context.Background(), "alice@example.com", "Wrong#Pass1")
	_, unknownEmail := f.service.Login(context.Background(), "bob@example.com", "New#Strong1")

	require.ErrorIs(t, wrongPassword, shared.NewError(shared.CodeBadCredentials))
	require.ErrorIs(t, unknownEmail, shared.NewError(shared.CodeBadCredentials))
}

func TestLoginAllowedForDeactivatedVerifiedUser(t *testing.T) {
	f := newFixture(t)
	user := f.registerActive(t, "alice@example.com")
	f.users.SetEnabled(user.ID, false)

	_, err := f.service.Login(context.Background(), "alice@example.com", "New#Strong1")
	require.NoError(t, err)
}

func TestRefreshKeepsRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.registerActive(t, "alice@example.com")
	pair, err := f.service.Login(context.Background(), "alice@example.com", "New#Strong1")
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	require.False(t, f.tokens.IsValid(pair.AccessToken))

	refreshed, err := f.service.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, refreshed.RefreshToken)
	require.True(t, f.tokens.IsValid(refreshed.AccessToken))
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	f.registerActive(t, "alice@example.com")
	pair, err := f.service.Login(context.Background(), "alice@example.com", "New#Strong1")
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, shared.NewError(shared.CodeInvalidTokenType))
}

func TestRefreshRejectsExpiredRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.registerActive(t, "alice@example.com")
	pair, err := f.service.Login(context.Background(), "alice@example.com", "New#Strong1")
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.service.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, shared.NewError(shared.CodeExpiredToken))
}

func TestResendActivationCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.service.ResendActivationCode(ctx, "nobody@example.com")
	require.ErrorIs(t, err, shared.NewError(shared.CodeUserEmailNotFound))

	f.registerActive(t, "alice@example.com")
	err = f.service.ResendActivationCode(ctx, "alice@example.com")
	require.ErrorIs(t, err, shared.NewError(shared.CodeEmailAlreadyVerified))
}

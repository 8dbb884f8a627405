package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/budgetblitz/budgetblitz/internal/codes"
	"github.com/budgetblitz/budgetblitz/internal/shared"
	_ "github.com/budgetblitz/budgetblitz/internal/testing/guard"
	"github.com/budgetblitz/budgetblitz/internal/token"
	"github.com/budgetblitz/budgetblitz/internal/users"
)

type memoryUsers struct {
	mu      sync.Mutex
	users   map[int64]users.User
	nextID  int64
	lookups int
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[int64]users.User)}
}

func (r *memoryUsers) FindByEmail(ctx context.Context, email string) (users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

func (r *memoryUsers) FindByID(ctx context.Context, id int64) (users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (r *memoryUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *memoryUsers) Create(ctx context.Context, user users.User, roles []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return 0, users.ErrDuplicateEmail
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.Roles = append([]string(nil), roles...)
	r.users[user.ID] = user
	return user.ID, nil
}

func (r *memoryUsers) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.mutate(id, func(u *users.User) { u.PasswordHash = passwordHash })
}

func (r *memoryUsers) MarkVerified(ctx context.Context, id int64) error {
	return r.mutate(id, func(u *users.User) {
		u.EmailVerified = true
		u.Enabled = true
	})
}

func (r *memoryUsers) SetEnabled(id int64, enabled bool) {
	_ = r.mutate(id, func(u *users.User) { u.Enabled = enabled })
}

func (r *memoryUsers) mutate(id int64, fn func(*users.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return users.ErrNotFound
	}
	fn(&u)
	r.users[id] = u
	return nil
}

func (r *memoryUsers) byEmail(t *testing.T, email string) users.User {
	t.Helper()
	u, err := r.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

type memoryCodes struct {
	mu     sync.Mutex
	codes  map[int64]codes.Code
	nextID int64
}

type memoryCodesTx struct {
	repo *memoryCodes
}

func newMemoryCodes() *memoryCodes {
	return &memoryCodes{codes: make(map[int64]codes.Code)}
}

func (r *memoryCodes) Insert(ctx context.Context, code codes.Code) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	code.ID = r.nextID
	r.codes[code.ID] = code
	return code.ID, nil
}

func (r *memoryCodes) ListByPurpose(ctx context.Context, purpose codes.Purpose) ([]codes.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []codes.Code
	for _, c := range r.codes {
		if c.Purpose == purpose {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (r *memoryCodes) FindByID(ctx context.Context, id int64) (codes.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[id]
	if !ok {
		return codes.Code{}, codes.ErrNotFound
	}
	return c, nil
}

func (r *memoryCodes) WithTx(ctx context.Context, fn func(context.Context, codes.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]codes.Code, len(r.codes))
	for k, v := range r.codes {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryCodesTx{repo: r}); err != nil {
		r.codes = snapshot
		return err
	}
	return nil
}

func (tx *memoryCodesTx) LockByID(ctx context.Context, id int64) (codes.Code, error) {
	c, ok := tx.repo.codes[id]
	if !ok {
		return codes.Code{}, codes.ErrNotFound
	}
	return c, nil
}

func (tx *memoryCodesTx) MarkValidated(ctx context.Context, id int64, at time.Time) (bool, error) {
	c, ok := tx.repo.codes[id]
	if !ok || c.ValidatedAt != nil {
		return false, nil
	}
	c.ValidatedAt = &at
	tx.repo.codes[id] = c
	return true, nil
}

func (tx *memoryCodesTx) MarkRedeemed(ctx context.Context, id int64, at time.Time) (bool, error) {
	c, ok := tx.repo.codes[id]
	if !ok || c.RedeemedAt != nil {
		return false, nil
	}
	c.RedeemedAt = &at
	tx.repo.codes[id] = c
	return true, nil
}

func (r *memoryCodes) count(userID int64, purpose codes.Purpose) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.codes {
		if c.UserID == userID && c.Purpose == purpose {
			n++
		}
	}
	return n
}

type sentMail struct {
	kind string
	to   Recipient
	code string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *fakeNotifier) SendActivationCode(ctx context.Context, to Recipient, code string) error {
	return n.record("activation", to, code)
}

func (n *fakeNotifier) SendResetCode(ctx context.Context, to Recipient, code string) error {
	return n.record("reset", to, code)
}

func (n *fakeNotifier) record(kind string, to Recipient, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{kind: kind, to: to, code: code})
	return nil
}

func (n *fakeNotifier) last(t *testing.T, kind string) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i]
		}
	}
	t.Fatalf("no %s mail sent", kind)
	return sentMail{}
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.kind == kind {
			c++
		}
	}
	return c
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func signingKey() *rsa.PrivateKey {
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

type fixture struct {
	service  *Service
	tokens   *token.Service
	users    *memoryUsers
	codes    *memoryCodes
	notifier *fakeNotifier
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{now: time.Now().UTC()}
	hasher := shared.NewBcryptHasher(bcrypt.MinCost)
	tokens, err := token.NewService(token.NewKeyPair(signingKey()), token.Config{
		Issuer:     "budgetblitz",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ResetTTL:   10 * time.Minute,
		Now:        c.Now,
	})
	require.NoError(t, err)

	userRepo := newMemoryUsers()
	codeRepo := newMemoryCodes()
	store := codes.NewStore(codeRepo, hasher, codes.Config{Now: c.Now})
	notifier := &fakeNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := NewService(userRepo, store, tokens, hasher, notifier, logger)
	require.NoError(t, err)
	return &fixture{service: svc, tokens: tokens, users: userRepo, codes: codeRepo, notifier: notifier, clock: c}
}

func validRegistration(email string) RegisterRequest {
	return RegisterRequest{
		FirstName:       "Alice",
		LastName:        "Walker",
		Email:           email,
		DateOfBirth:     "1990-04-12",
		Password:        "New#Strong1",
		ConfirmPassword: "New#Strong1",
	}
}

// registerActive registers email and activates it with the mailed code.
func (f *fixture) registerActive(t *testing.T, email string) users.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.service.Register(ctx, validRegistration(email)))
	require.NoError(t, f.service.ActivateAccount(ctx, f.notifier.last(t, "activation").code))
	return f.users.byEmail(t, email)
}

package codes

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Hasher hashes and verifies code digits.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// Config tunes the Store.
type Config struct {
	TTL    time.Duration
	Length int
	Now    func() time.Time

	// Generate draws fresh digits; defaults to Generate.
	Generate func(length int) (string, error)
}

// Store issues and redeems one-time codes.
type Store struct {
	repo     Repository
	hasher   Hasher
	ttl      time.Duration
	length   int
	now      func() time.Time
	generate func(int) (string, error)
}

// maxGenerateAttempts bounds retries when fresh digits collide with a taken code.
const maxGenerateAttempts = 5

// NewStore constructs a Store.
func NewStore(repo Repository, hasher Hasher, cfg Config) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	length := cfg.Length
	if length <= 0 {
		length = Length
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	generate := cfg.Generate
	if generate == nil {
		generate = Generate
	}
	return &Store{repo: repo, hasher: hasher, ttl: ttl, length: length, now: now, generate: generate}
}

// IssueAndStore generates a code for userID, persists its hash and returns the
// plaintext for delivery.
func (s *Store) IssueAndStore(ctx context.Context, userID int64, purpose Purpose) (Issued, error) {
	existing, err := s.repo.ListByPurpose(ctx, purpose)
	if err != nil {
		return Issued{}, err
	}
	now := s.now()
	// Codes that expired within the last TTL still count as taken, consumed
	// or not: Verify falls back to such matches, so reusing their digits would
	// let a stale code resolve to another user's fresh one.
	var taken []Code
	for _, c := range existing {
		if now.Before(c.ExpiredAt.Add(s.ttl)) {
			taken = append(taken, c)
		}
	}

	var plain string
	for attempt := 0; ; attempt++ {
		if attempt == maxGenerateAttempts {
			return Issued{}, errors.New("codes: could not generate a unique code")
		}
		plain, err = s.generate(s.length)
		if err != nil {
			return Issued{}, err
		}
		if _, clash := s.match(taken, plain); !clash {
			break
		}
	}

	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return Issued{}, fmt.Errorf("codes: hash: %w", err)
	}
	code := Code{
		UserID:    userID,
		Purpose:   purpose,
		Hash:      hash,
		CreatedAt: now,
		ExpiredAt: now.Add(s.ttl),
	}
	id, err := s.repo.Insert(ctx, code)
	if err != nil {
		return Issued{}, err
	}
	return Issued{ID: id, UserID: userID, Plain: plain, ExpiresAt: code.ExpiredAt}, nil
}

// Verify finds the stored code matching plain. Every code of the purpose is
// compared by hash because the digits cannot be looked up directly; a live
// match wins over a consumed or expired one.
func (s *Store) Verify(ctx context.Context, purpose Purpose, plain string) (Code, error) {
	candidates, err := s.repo.ListByPurpose(ctx, purpose)
	if err != nil {
		return Code{}, err
	}
	now := s.now()
	var fallback *Code
	for i := range candidates {
		c := candidates[i]
		if !s.hasher.Verify(c.Hash, plain) {
			continue
		}
		if c.Live(now) {
			return c, nil
		}
		if fallback == nil {
			fallback = &c
		}
	}
	if fallback == nil {
		return Code{}, ErrNotFound
	}
	return *fallback, nil
}

// Consume redeems the code matching plain. The consumed check, expiry check
// and the write of validated_at happen under a row lock so concurrent callers
// see exactly one success; the rest get ErrAlreadyConsumed. onConsumed runs in
// the same transaction. On ErrExpired the matched code is returned so the
// caller can issue a replacement.
func (s *Store) Consume(ctx context.Context, purpose Purpose, plain string, onConsumed func(context.Context, Code) error) (Code, error) {
	match, err := s.Verify(ctx, purpose, plain)
	if err != nil {
		return Code{}, err
	}

	var result Code
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockByID(ctx, match.ID)
		if err != nil {
			return err
		}
		result = current
		if current.Consumed() {
			return ErrAlreadyConsumed
		}
		now := s.now()
		if current.Expired(now) {
			return ErrExpired
		}
		won, err := tx.MarkValidated(ctx, current.ID, now)
		if err != nil {
			return err
		}
		if !won {
			return ErrAlreadyConsumed
		}
		result.ValidatedAt = &now
		if onConsumed != nil {
			return onConsumed(ctx, result)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrExpired) {
			return result, err
		}
		return Code{}, err
	}
	return result, nil
}

// FindByID loads a stored code.
func (s *Store) FindByID(ctx context.Context, id int64) (Code, error) {
	return s.repo.FindByID(ctx, id)
}

// Redeem spends the reset grant backed by code id exactly once. The code must
// be a consumed code of purpose owned by userID, otherwise ErrNotFound.
// onRedeemed runs in the same transaction as the redeemed_at write; if it
// fails the grant stays usable. Later callers get ErrAlreadyRedeemed.
func (s *Store) Redeem(ctx context.Context, id int64, purpose Purpose, userID int64, onRedeemed func(context.Context) error) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockByID(ctx, id)
		switch {
		case errors.Is(err, ErrAlreadyConsumed):
			return ErrAlreadyRedeemed
		case err != nil:
			return err
		}
		if current.Purpose != purpose || current.UserID != userID || !current.Consumed() {
			return ErrNotFound
		}
		if current.RedeemedAt != nil {
			return ErrAlreadyRedeemed
		}
		won, err := tx.MarkRedeemed(ctx, current.ID, s.now())
		if err != nil {
			return err
		}
		if !won {
			return ErrAlreadyRedeemed
		}
		if onRedeemed != nil {
			return onRedeemed(ctx)
		}
		return nil
	})
}

func (s *Store) match(codes []Code, plain string) (Code, bool) {
	for _, c := range codes {
		if s.hasher.Verify(c.Hash, plain) {
			return c, true
		}
	}
	return Code{}, false
}

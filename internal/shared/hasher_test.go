package shared

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("New#Strong1")
	require.NoError(t, err)
	require.True(t, h.Verify(hash, "New#Strong1"))
	require.False(t, h.Verify(hash, "New#Strong2"))
}

func TestBcryptHasherRejectsOversizedSecret(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	_, err := h.Hash("Aa#" + strings.Repeat("é", 60))
	require.Error(t, err)
	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, CodeValidationFailed, appErr.Code)
}

func TestMaxBytesTagCountsBytes(t *testing.T) {
	type secret struct {
		Password string `json:"password" validate:"maxbytes=72"`
	}
	v := NewValidator(nil)
	require.NoError(t, v.Struct(secret{Password: strings.Repeat("a", MaxPasswordBytes)}))
	require.NoError(t, v.Struct(secret{Password: strings.Repeat("é", 36)}))
	require.Error(t, v.Struct(secret{Password: strings.Repeat("é", 37)}))
}

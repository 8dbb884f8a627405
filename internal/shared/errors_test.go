package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCatalog(t *testing.T) {
	err := WrapError(CodeEmailSendingFailed, context.DeadlineExceeded)
	require.ErrorIs(t, err, NewError(CodeEmailSendingFailed))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 500, CodeOf(err).Status())
	require.Equal(t, CodeInternal, CodeOf(context.Canceled))
	require.Equal(t, 404, CodeTokenNotFound.Status())
	require.Equal(t, 429, CodeTooManyAttempts.Status())
	require.False(t, ErrorCode("NOPE").Known())
	require.True(t, IsCode(NewError(CodeBadCredentials).WithDetail("x"), CodeBadCredentials))
}

package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("dial tcp: connection refused")
	err := NewError(ErrSetup, "metadata store unreachable").
		WithCause(root).
		WithItem("dressA")

	assert.Equal(t, ErrSetup, GetErrorKind(err))
	assert.True(t, IsFatal(err))
	assert.True(t, errors.Is(err, root))
	assert.Contains(t, err.Error(), "SETUP_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetErrorKind_Wrapped(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrStoreWrite, "upsert failed")
	wrapped := fmt.Errorf("upload dressA: %w", inner)

	assert.Equal(t, ErrStoreWrite, GetErrorKind(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.Equal(t, ErrorKind(""), GetErrorKind(errors.New("plain")))
	assert.False(t, IsFatal(nil))
}

func TestError_WithoutCause(t *testing.T) {
	t.Parallel()

	err := NewError(ErrPolicySkip, "no texture")
	assert.Equal(t, "[POLICY_SKIP] no texture", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

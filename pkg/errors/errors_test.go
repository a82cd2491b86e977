package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesChain(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := Wrap(cause, ErrCodeStreamRead, "read failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "STREAM_READ_ERROR")
	assert.Contains(t, err.Error(), "read failed")
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nope"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "nope %d", 1))
}

func TestCode(t *testing.T) {
	assert.Equal(t, ErrCodeConfig, Code(New(ErrCodeConfig, "bad")))
	assert.Equal(t, ErrCodeInternal, Code(stderrors.New("plain")))

	wrapped := Wrap(New(ErrCodeRetryable, "inner"), ErrCodeFatalTransfer, "outer")
	assert.Equal(t, ErrCodeFatalTransfer, Code(wrapped), "outermost code wins")
}

func TestHasCode(t *testing.T) {
	wrapped := Wrap(New(ErrCodeRetryable, "inner"), ErrCodeFatalTransfer, "outer")

	assert.True(t, HasCode(wrapped, ErrCodeFatalTransfer))
	assert.True(t, HasCode(wrapped, ErrCodeRetryable))
	assert.False(t, HasCode(wrapped, ErrCodeNotFound))
	assert.False(t, HasCode(nil, ErrCodeInternal))
	assert.False(t, HasCode(stderrors.New("plain"), ErrCodeInternal))
}

func TestSentinels(t *testing.T) {
	assert.True(t, HasCode(ErrNotFound, ErrCodeNotFound))
	assert.True(t, Is(Wrap(ErrNotFound, ErrCodeInternal, "ctx"), ErrNotFound))
}

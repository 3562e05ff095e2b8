package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(ErrCodeValidation, "bad input")

	assert.Equal(t, ErrCodeValidation, CodeOf(err))
	assert.Contains(t, err.Error(), "bad input")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrCodeClusterUnreachable, "cannot reach apiserver")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeClusterUnreachable, CodeOf(err))
	assert.Contains(t, err.Error(), "cannot reach apiserver")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOfSurvivesFmtWrapping(t *testing.T) {
	inner := New(ErrCodeNotFound, "no profile")
	outer := fmt.Errorf("lookup: %w", inner)

	assert.Equal(t, ErrCodeNotFound, CodeOf(outer))
	assert.True(t, HasCode(outer, ErrCodeNotFound))
	assert.False(t, HasCode(outer, ErrCodeValidation))
}

func TestCodeOfUncodedError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeClusterUnreachable, "down")))
	assert.True(t, IsRetryable(New(ErrCodeRepoUnreachable, "down")))
	assert.False(t, IsRetryable(New(ErrCodeValidation, "bad")))
	assert.False(t, IsRetryable(nil))
}

func TestNewfFormats(t *testing.T) {
	err := Newf(ErrCodeChartNotFound, "chart %q not in %q", "kepler", "repo")
	assert.Contains(t, err.Error(), `chart "kepler" not in "repo"`)
}

package errs

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"storage", NewStorageError("append", sql.ErrConnDone), CodeStorage},
		{"completion", NewCompletionError("openai", 500, errors.New("boom")), CodeCompletion},
		{"configuration", NewConfigurationError("gateway.token", errors.New("required")), CodeConfiguration},
		{"wrapped", fmt.Errorf("handle: %w", NewStorageError("recent", nil)), CodeStorage},
		{"plain", errors.New("plain"), CodeUnknown},
		{"nil", nil, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestCompletionErrorCarriesStatus(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("reply: %w", NewCompletionError("gemini", 503, errors.New("unavailable")))

	var cErr *CompletionError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, 503, cErr.StatusCode)
	assert.Equal(t, "gemini", cErr.Provider)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "unavailable")
}

func TestStorageErrorUnwraps(t *testing.T) {
	t.Parallel()

	err := NewStorageError("upsert profile", sql.ErrConnDone)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	var sErr *StorageError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "upsert profile", sErr.Op)
}

func TestConfigurationErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "configuration: completion.api_key: missing",
		NewConfigurationError("completion.api_key", errors.New("missing")).Error())
	assert.Equal(t, "configuration", NewConfigurationError("", nil).Error())
}

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationErrorListsFields(t *testing.T) {
	err := NewValidationError(map[string]string{"title": "required", "max_grade": "must be between 1 and 100"})

	require.Equal(t, ErrValidation.Code, err.Code)
	assert.True(t, err.HasField("title"))
	assert.Equal(t, []string{"max_grade", "title"}, err.FieldNames())
	assert.Equal(t, "invalid fields: max_grade, title", err.Message)
}

func TestErrorIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("grading: %w", WrapClone(ErrGradingFailure, errors.New("timeout"), "grader timed out"))

	assert.True(t, errors.Is(wrapped, ErrGradingFailure))
	assert.False(t, errors.Is(wrapped, ErrGenerationFailure))
	assert.Contains(t, wrapped.Error(), "timeout")
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	err := FromError(errors.New("boom"))
	require.NotNil(t, err)
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Nil(t, FromError(nil))
}

func TestCloneDoesNotShareFields(t *testing.T) {
	original := NewValidationError(map[string]string{"title": "required"})
	clone := Clone(original, "")
	clone.Fields["prompt"] = "required"

	assert.False(t, original.HasField("prompt"))
}

package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodesSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("create note: %w", CapacityExceeded("too many owners"))
	assert.Equal(t, CodeCapacityExceeded, CodeOf(err))
	assert.True(t, IsCapacityExceeded(err))
	assert.False(t, IsNotFound(err))
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("boom")))
	assert.False(t, Is(nil, CodeNotFound))
}

func TestErrorMessage(t *testing.T) {
	err := NotFound(KindNote, "7")
	assert.Equal(t, "NOT_FOUND: no such entity (note 7)", err.Error())

	wrapped := ExternalServiceFailure(errors.New("timeout"))
	assert.Contains(t, wrapped.Error(), "timeout")
	assert.ErrorContains(t, errors.Unwrap(wrapped), "timeout")
}

func TestFatal(t *testing.T) {
	assert.True(t, AllocatorExhausted(KindNote).Fatal())
	assert.True(t, DanglingIndex(KindNote, "3").Fatal())
	assert.True(t, IsFatal(fmt.Errorf("list: %w", DanglingIndex(KindNote, "3"))))

	// A forbidden job transition is a hard failure for the call but not an
	// internal-consistency violation.
	assert.False(t, InvalidState(KindJob, "job_1", "job is terminal").Fatal())
	assert.False(t, Unauthorized(KindNote, "1", "nope").Fatal())
}

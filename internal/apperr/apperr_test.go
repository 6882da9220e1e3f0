package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	err := fmt.Errorf("load: %w", NotFound("attempt"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "load: attempt not found", err.Error())

	inv := Invalid("score %d out of range", 120)
	assert.True(t, errors.Is(inv, ErrInvalid))
	assert.False(t, errors.Is(inv, ErrConflict))
	assert.Equal(t, "score 120 out of range", inv.Error())

	assert.True(t, errors.Is(Locked("module locked"), ErrLocked))
	assert.True(t, errors.Is(Forbidden("nope"), ErrForbidden))
	assert.True(t, errors.Is(Conflict("dup"), ErrConflict))
}

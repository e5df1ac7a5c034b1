package hierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesSentinelForErrorsIs(t *testing.T) {
	err := Wrap(ErrNotFound, `no domain range registered for attribute "a"`)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInputMalformed))
	assert.Contains(t, err.Error(), "attribute")
}

func TestSentinelsAreDistinct(t *testing.T) {
	kinds := []Kind{ErrInputMalformed, ErrInvariantViolation, ErrUnsupportedOperation, ErrNotFound, ErrTypeMismatch}
	for i, a := range kinds {
		for j, b := range kinds {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v should not satisfy errors.Is against %v", a, b)
		}
	}
}

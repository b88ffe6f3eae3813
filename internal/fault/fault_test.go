package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := New(ZipPassword, "archive is password-protected")
	assert.Equal(t, ZipPassword, KindOf(base))

	wrapped := fmt.Errorf("processing failed: %w", base)
	assert.Equal(t, ZipPassword, KindOf(wrapped))

	assert.Equal(t, Unknown, KindOf(errors.New("something else")))
	assert.True(t, Is(wrapped, ZipPassword))
	assert.False(t, Is(wrapped, ZipCorrupt))
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("short read")
	err := Wrap(ZipCorrupt, "cannot read archive", cause)

	assert.Equal(t, "cannot read archive: short read", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))

	bare := New(EmpNotFound, "employee not found: 123")
	assert.Equal(t, "employee not found: 123", bare.Error())
}

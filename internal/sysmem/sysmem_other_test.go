//go:build !linux && !openbsd

package sysmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnsupportedPlatform(t *testing.T) {
	assert.False(t, PercentSupported)

	_, err := FreeBytes()
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = TotalBytes()
	assert.ErrorIs(t, err, ErrUnsupported)
}

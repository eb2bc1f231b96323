package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "1.5 MiB", FormatBytes(3*512*1024))
	assert.Equal(t, "-", FormatBytes(-1))
}

func TestFormatBytesPtr(t *testing.T) {
	assert.Equal(t, "-", FormatBytesPtr(nil))

	quota := int64(10 * 1024 * 1024 * 1024)
	assert.Equal(t, "10 GiB", FormatBytesPtr(&quota))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "12345", FormatCount(12345))
}

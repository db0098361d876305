package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	d := NewDigest()
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", d.Sum())

	_, _ = d.Write([]byte("hello "))
	_, _ = d.Write([]byte("world"))
	assert.Equal(t, int64(11), d.Size())
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", d.Sum())

	sum, size, err := SHA256(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
	assert.Equal(t, d.Sum(), sum)
}

package compressor

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZstdRoundTrip(t *testing.T) {
	c, err := NewZstdCompressor(WithConcurrency(1), WithLevel(zstd.SpeedFastest))
	require.NoError(t, err)
	defer c.Close()

	src := bytes.Repeat([]byte("garden-serial "), 256)
	packed, err := c.Compress(nil, src)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(src))

	plain, err := c.Decompress(nil, packed)
	require.NoError(t, err)
	assert.Equal(t, src, plain)

	_, err = c.Decompress(nil, []byte("not zstd"))
	assert.Error(t, err)
}

func TestZstdClosed(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	c.Close()
	c.Close()

	_, err = c.Compress(nil, []byte("x"))
	assert.ErrorIs(t, err, zstd.ErrEncoderClosed)
	_, err = c.Decompress(nil, []byte("x"))
	assert.ErrorIs(t, err, zstd.ErrDecoderClosed)
}

func TestNop(t *testing.T) {
	var c Compressor = NopCompressor{}
	out, err := c.Compress(nil, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
}

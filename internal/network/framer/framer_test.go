package framer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

func TestFrameRoundTrip(t *testing.T) {
	f := NewLengthPrefixedFramer(0)
	var buf bytes.Buffer

	in := []*Envelope{
		{Header: Header{Op: 1, Seq: 7, Flags: FlagCompressed}, Payload: []byte("hello")},
		{Header: Header{Op: 2, Seq: 8}},
	}
	for _, env := range in {
		require.NoError(t, f.WriteFrame(&buf, env))
	}
	for _, want := range in {
		got, err := f.ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want.Header, got.Header)
		assert.Equal(t, want.Payload, got.Payload)
	}
	assert.Equal(t, 0, buf.Len())
}

func TestFrameLimits(t *testing.T) {
	f := NewLengthPrefixedFramer(headerSize + 4)
	var buf bytes.Buffer
	err := f.WriteFrame(&buf, &Envelope{Payload: []byte("too long")})
	assert.ErrorIs(t, err, merr.ErrParameterTooLarge)
	assert.ErrorIs(t, f.WriteFrame(&buf, nil), merr.ErrParameterMissing)

	big := NewLengthPrefixedFramer(0)
	require.NoError(t, big.WriteFrame(&buf, &Envelope{Payload: []byte("too long")}))
	_, err = f.ReadFrame(&buf)
	assert.ErrorIs(t, err, merr.ErrParameterTooLarge)

	_, err = f.ReadFrame(bytes.NewReader([]byte{0, 0, 0, 1, 0}))
	assert.ErrorIs(t, err, merr.ErrStreamCorrupted)

	_, err = f.ReadFrame(bytes.NewReader([]byte{0, 0}))
	assert.Error(t, err)
}

package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-serial/internal/network/compressor"
	"github.com/lk2023060901/garden-serial/internal/network/framer"
	"github.com/lk2023060901/garden-serial/internal/network/serializer"
	"github.com/lk2023060901/garden-serial/pkg/serial"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

type chatMessage struct {
	From string
	Text string
	Tags []string
}

func newRepo(t *testing.T) *serial.Repository {
	repo, err := serial.NewRepository()
	require.NoError(t, err)
	return repo
}

func TestEncodeDecode(t *testing.T) {
	zc, err := compressor.NewZstdCompressor(compressor.WithConcurrency(1))
	require.NoError(t, err)
	defer zc.Close()

	writer, err := New(Options{
		Framer:            framer.NewLengthPrefixedFramer(0),
		Serializer:        serializer.NewSessionSerializer(newRepo(t)),
		Compressor:        zc,
		EnableCompression: true,
		MinCompressSize:   512,
	})
	require.NoError(t, err)
	reader, err := New(Options{
		Framer:            framer.NewLengthPrefixedFramer(0),
		Serializer:        serializer.NewBinarySerializer(newRepo(t)),
		Compressor:        zc,
		EnableCompression: true,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	short := chatMessage{From: "a", Text: "hi"}
	long := chatMessage{From: "b", Text: strings.Repeat("long text ", 64), Tags: []string{"x", "y"}}

	h1 := &framer.Header{Op: 10, Seq: 1}
	require.NoError(t, writer.Encode(&buf, h1, short))
	assert.Zero(t, h1.Flags&framer.FlagCompressed)
	h2 := &framer.Header{Op: 11, Seq: 2}
	require.NoError(t, writer.Encode(&buf, h2, long))
	assert.NotZero(t, h2.Flags&framer.FlagCompressed)

	var got chatMessage
	header, err := reader.Decode(&buf, &got)
	require.NoError(t, err)
	assert.EqualValues(t, 10, header.Op)
	assert.Equal(t, short, got)

	got = chatMessage{}
	header, err = reader.Decode(&buf, &got)
	require.NoError(t, err)
	assert.EqualValues(t, 2, header.Seq)
	assert.Equal(t, long, got)
}

func TestSessionSerializerSendsDescriptorOnce(t *testing.T) {
	s := serializer.NewSessionSerializer(newRepo(t))
	msg := chatMessage{From: "a", Text: "hi"}

	first, err := s.Marshal(msg)
	require.NoError(t, err)
	second, err := s.Marshal(msg)
	require.NoError(t, err)
	assert.Less(t, len(second), len(first))

	// 接收端按序学习描述符
	reader := serializer.NewBinarySerializer(newRepo(t))
	var out chatMessage
	require.NoError(t, reader.Unmarshal(first, &out))
	require.NoError(t, reader.Unmarshal(second, &out))
	assert.Equal(t, msg, out)

	// 未见过首条消息的接收端无法解码
	fresh := serializer.NewBinarySerializer(newRepo(t))
	assert.ErrorIs(t, fresh.Unmarshal(second, &out), merr.ErrUnknownType)
}

func TestCompressedWithoutCompression(t *testing.T) {
	zc, err := compressor.NewZstdCompressor(compressor.WithConcurrency(1))
	require.NoError(t, err)
	defer zc.Close()

	writer, err := New(Options{
		Framer:            framer.NewLengthPrefixedFramer(0),
		Serializer:        serializer.JSONSerializer{},
		Compressor:        zc,
		EnableCompression: true,
	})
	require.NoError(t, err)
	reader, err := New(Options{
		Framer:     framer.NewLengthPrefixedFramer(0),
		Serializer: serializer.JSONSerializer{},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writer.Encode(&buf, &framer.Header{Op: 1}, chatMessage{From: "a"}))
	_, err = reader.Decode(&buf, &chatMessage{})
	assert.ErrorIs(t, err, merr.ErrOperationNotSupported)
}

func TestNewMissingDeps(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
	_, err = New(Options{Framer: framer.NewLengthPrefixedFramer(0)})
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
}

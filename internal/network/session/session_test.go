package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-serial/internal/network/codec"
	"github.com/lk2023060901/garden-serial/internal/network/framer"
	"github.com/lk2023060901/garden-serial/internal/network/serializer"
	"github.com/lk2023060901/garden-serial/pkg/serial"
)

type position struct {
	X, Y int32
	Zone string
}

func newCodec(t *testing.T) codec.Codec {
	repo, err := serial.NewRepository()
	require.NoError(t, err)
	c, err := codec.New(codec.Options{
		Framer:     framer.NewLengthPrefixedFramer(0),
		Serializer: serializer.NewSessionSerializer(repo),
	})
	require.NoError(t, err)
	return c
}

func TestSendRecv(t *testing.T) {
	left, right := net.Pipe()
	ctx := context.Background()
	client := NewBaseSession(ctx, 1, left, newCodec(t))
	server := NewBaseSession(ctx, 2, right, newCodec(t))
	defer client.Close()
	defer server.Close()

	for i := int32(0); i < 3; i++ {
		require.NoError(t, client.Send(7, position{X: i, Y: -i, Zone: "north"}))
	}
	for i := int32(0); i < 3; i++ {
		var got position
		op, err := server.Recv(&got)
		require.NoError(t, err)
		assert.EqualValues(t, 7, op)
		assert.Equal(t, position{X: i, Y: -i, Zone: "north"}, got)
	}
}

func TestClose(t *testing.T) {
	left, right := net.Pipe()
	s := NewBaseSession(context.Background(), 1, left, newCodec(t))
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Error(t, s.Send(1, position{}))
	_, err := s.Recv(&position{})
	assert.Error(t, err)
	right.Close()
}

func TestSessionManager(t *testing.T) {
	m := NewBaseSessionManager()
	left, right := net.Pipe()
	defer right.Close()
	s := NewBaseSession(context.Background(), 42, left, newCodec(t))
	defer s.Close()

	require.NoError(t, m.Register(s))
	assert.Error(t, m.Register(s))
	assert.Error(t, m.Register(nil))

	got, ok := m.Get(42)
	require.True(t, ok)
	assert.Equal(t, uint64(42), got.ID())
	assert.Equal(t, 1, m.Count())

	seen := 0
	m.Range(func(Session) bool { seen++; return true })
	assert.Equal(t, 1, seen)

	require.NoError(t, m.Unregister(42))
	assert.Error(t, m.Unregister(42))
	assert.Equal(t, 0, m.Count())
}

func TestDialAccept(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx := context.Background()
	accepted := make(chan *BaseSession, 1)
	serverCodec := newCodec(t)
	go func() {
		s, err := Accept(ctx, ln, serverCodec)
		if err == nil {
			accepted <- s
		}
		close(accepted)
	}()

	client, err := Dial(ctx, ln.Addr().String(), newCodec(t), DialOptions{Attempts: 2})
	require.NoError(t, err)
	defer client.Close()
	server, ok := <-accepted
	require.True(t, ok)
	defer server.Close()
	assert.NotEqual(t, client.ID(), server.ID())

	require.NoError(t, client.Send(3, position{X: 1, Zone: "tcp"}))
	var got position
	op, err := server.Recv(&got)
	require.NoError(t, err)
	assert.EqualValues(t, 3, op)
	assert.Equal(t, "tcp", got.Zone)
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), addr, newCodec(t), DialOptions{Attempts: 2, Sleep: time.Millisecond})
	assert.Error(t, err)
}

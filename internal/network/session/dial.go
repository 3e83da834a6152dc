package session

import (
	"context"
	"net"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/internal/network/codec"
	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/util/retry"
)

var nextID atomic.Uint64

// NextID 进程内自增的会话 ID。
func NextID() uint64 {
	return nextID.Inc()
}

// DialOptions 控制 Dial 的重试。
type DialOptions struct {
	Timeout  time.Duration
	Attempts uint
	Sleep    time.Duration
}

// Dial 建立 TCP 连接并创建会话，连接失败时按指数退避重试。
func Dial(ctx context.Context, addr string, c codec.Codec, opts DialOptions) (*BaseSession, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Attempts == 0 {
		opts.Attempts = 5
	}
	if opts.Sleep <= 0 {
		opts.Sleep = 100 * time.Millisecond
	}

	dialer := net.Dialer{Timeout: opts.Timeout}
	var conn net.Conn
	err := retry.Do(ctx, func() error {
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		return err
	}, retry.Attempts(opts.Attempts), retry.Sleep(opts.Sleep))
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug("dialed", zap.String("addr", addr))
	return NewBaseSession(ctx, NextID(), conn, c), nil
}

// Accept 接受一个连接并创建会话。
func Accept(ctx context.Context, ln net.Listener, c codec.Codec) (*BaseSession, error) {
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewBaseSession(ctx, NextID(), conn, c), nil
}

package session

import (
	"context"
	"net"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/internal/network/codec"
	"github.com/lk2023060901/garden-serial/internal/network/framer"
	"github.com/lk2023060901/garden-serial/pkg/log"
)

// BaseSession 基于 net.Conn 的 Session 实现。
//
// 写路径只在 sendLoop 中执行，读路径由调用方在单个协程中驱动。
type BaseSession struct {
	id uint64

	ctx    context.Context
	cancel context.CancelFunc

	conn  net.Conn
	codec codec.Codec

	sendQueue chan outboundMessage
	// sendErr 记录发送协程退出的原因。
	sendErr atomic.Error
	done    chan struct{}

	seq atomic.Uint64

	closeOnce sync.Once
	logger    *log.MLogger
}

var _ Session = (*BaseSession)(nil)

type outboundMessage struct {
	op  uint32
	msg any
}

const defaultSendQueueSize = 1024

// NewBaseSession parent 为 nil 时使用 context.Background()。
func NewBaseSession(parent context.Context, id uint64, conn net.Conn, c codec.Codec) *BaseSession {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &BaseSession{
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		codec:     c,
		sendQueue: make(chan outboundMessage, defaultSendQueueSize),
		done:      make(chan struct{}),
		logger:    log.With(zap.Uint64("session", id), zap.Stringer("remote", conn.RemoteAddr())),
	}
	go s.sendLoop()
	return s
}

func (s *BaseSession) ID() uint64 {
	return s.id
}

func (s *BaseSession) Context() context.Context {
	return s.ctx
}

func (s *BaseSession) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *BaseSession) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *BaseSession) Send(op uint32, msg any) error {
	if err := s.closedErr(); err != nil {
		return err
	}
	select {
	case <-s.ctx.Done():
		return s.closedErr()
	case s.sendQueue <- outboundMessage{op: op, msg: msg}:
		return nil
	}
}

func (s *BaseSession) closedErr() error {
	if s.ctx.Err() == nil {
		return nil
	}
	if err := s.sendErr.Load(); err != nil {
		return err
	}
	return s.ctx.Err()
}

func (s *BaseSession) Recv(msg any) (uint32, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	header, err := s.codec.Decode(s.conn, msg)
	if err != nil {
		if header == nil {
			return 0, err
		}
		return header.Op, err
	}
	return header.Op, nil
}

func (s *BaseSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close()
		<-s.done
		s.logger.Debug("session closed")
	})
	return err
}

func (s *BaseSession) sendLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case out := <-s.sendQueue:
			header := &framer.Header{Op: out.op, Seq: s.seq.Inc()}
			if err := s.codec.Encode(s.conn, header, out.msg); err != nil {
				s.logger.Warn("send failed, closing session", zap.Uint32("op", out.op), zap.Error(err))
				s.sendErr.Store(err)
				s.cancel()
				return
			}
		}
	}
}

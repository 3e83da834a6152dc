package session

import (
	"context"
	"net"
)

// Session 表示一条承载对象流的连接。
//
// 同一连接上的消息按发送顺序解码，描述符只在首次出现时随消息发送。
type Session interface {
	// ID 由创建方分配，在同一个 SessionManager 中唯一。
	ID() uint64

	// Context 在会话关闭时取消。
	Context() context.Context

	RemoteAddr() net.Addr
	LocalAddr() net.Addr

	// Send 将消息投递到发送队列，由发送协程按序编码写出。
	Send(op uint32, msg any) error

	// Recv 阻塞读取下一帧并解码到 msg，返回帧头。
	Recv(msg any) (uint32, error)

	// Close 可重复调用。
	Close() error
}

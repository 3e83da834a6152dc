package serializer

import (
	"bytes"
	"sync"

	"github.com/lk2023060901/garden-serial/pkg/serial"
)

// BinarySerializer 每条消息是一个独立的对象流，描述符随消息内联。
type BinarySerializer struct {
	repo *serial.Repository
}

var _ Serializer = (*BinarySerializer)(nil)

func NewBinarySerializer(repo *serial.Repository) *BinarySerializer {
	return &BinarySerializer{repo: repo}
}

func (s *BinarySerializer) Marshal(v any) ([]byte, error) {
	return s.repo.Marshal(v)
}

func (s *BinarySerializer) Unmarshal(data []byte, v any) error {
	return s.repo.Unmarshal(data, v)
}

// SessionSerializer 在一条连接的生命周期内共享同一个 Encoder：
// 每个类型的描述符只在首条消息中发送一次，后续消息只携带 uid。
// 接收端在 Repository 中记住已学习的描述符，因此消息必须按序解码。
type SessionSerializer struct {
	repo *serial.Repository

	mu  sync.Mutex
	buf bytes.Buffer
	enc *serial.Encoder
}

var _ Serializer = (*SessionSerializer)(nil)

func NewSessionSerializer(repo *serial.Repository) *SessionSerializer {
	s := &SessionSerializer{repo: repo}
	s.enc = repo.NewEncoder(&s.buf)
	return s
}

func (s *SessionSerializer) Marshal(v any) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Reset()
	if err := s.enc.Encode(v); err != nil {
		// 失败的消息可能已登记了未送达的描述符
		s.enc.Reset()
		return nil, err
	}
	return bytes.Clone(s.buf.Bytes()), nil
}

func (s *SessionSerializer) Unmarshal(data []byte, v any) error {
	return s.repo.Unmarshal(data, v)
}

package session

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// BaseSessionManager 基于 xsync.MapOf 的并发安全实现。
type BaseSessionManager struct {
	sessions *xsync.MapOf[uint64, Session]
}

var _ SessionManager = (*BaseSessionManager)(nil)

func NewBaseSessionManager() *BaseSessionManager {
	return &BaseSessionManager{
		sessions: xsync.NewMapOf[uint64, Session](),
	}
}

func (m *BaseSessionManager) Register(sess Session) error {
	if sess == nil {
		return merr.WrapErrParameterMissing("session")
	}
	if _, loaded := m.sessions.LoadOrStore(sess.ID(), sess); loaded {
		return merr.WrapErrParameterInvalidMsg("session %d already registered", sess.ID())
	}
	return nil
}

func (m *BaseSessionManager) Get(id uint64) (Session, bool) {
	return m.sessions.Load(id)
}

func (m *BaseSessionManager) Unregister(id uint64) error {
	if _, loaded := m.sessions.LoadAndDelete(id); !loaded {
		return merr.WrapErrParameterInvalidMsg("session %d not found", id)
	}
	return nil
}

// Range 遍历期间注册或注销的会话可能不可见。
func (m *BaseSessionManager) Range(fn func(sess Session) bool) {
	if fn == nil {
		return
	}
	m.sessions.Range(func(_ uint64, sess Session) bool {
		return fn(sess)
	})
}

func (m *BaseSessionManager) Count() int {
	return m.sessions.Size()
}

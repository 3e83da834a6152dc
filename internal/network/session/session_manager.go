package session

// SessionManager 维护在线会话的索引，不负责会话的生命周期。
type SessionManager interface {
	// Register 遇到重复 ID 时返回错误，不覆盖旧会话。
	Register(sess Session) error

	Get(id uint64) (sess Session, ok bool)

	// Unregister 仅删除索引，不调用 sess.Close()。
	Unregister(id uint64) error

	// Range 遍历在线会话，fn 返回 false 时停止。
	Range(fn func(sess Session) bool)

	Count() int
}

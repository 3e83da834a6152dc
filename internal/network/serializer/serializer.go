package serializer

// Serializer 抽象了网络层“对象 <-> 字节流”的序列化能力。
//
// 调用方通过接口注入具体实现：二进制对象流或 JSON。
type Serializer interface {
	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象，v 必须是非 nil 指针。
	Unmarshal(data []byte, v any) error
}

package serializer

import (
	"github.com/bytedance/sonic"
)

// JSONSerializer 基于 bytedance/sonic 的 JSON 编解码，主要用于调试通道。
type JSONSerializer struct{}

var _ Serializer = (*JSONSerializer)(nil)

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}

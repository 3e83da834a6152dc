package compressor

// Compressor 负责单块数据的压缩与解压。
// 是否压缩由调用方决定，实现总是压缩输入。
type Compressor interface {
	// Compress 将 src 压缩后追加到 dst[:0]，返回完整的压缩数据。
	Compress(dst, src []byte) ([]byte, error)

	// Decompress 是 Compress 的逆过程。
	Decompress(dst, src []byte) ([]byte, error)
}

// NopCompressor 原样返回输入，未开启压缩时作为默认值。
type NopCompressor struct{}

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

var _ Compressor = NopCompressor{}

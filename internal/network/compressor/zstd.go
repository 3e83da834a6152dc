package compressor

import (
	"github.com/klauspost/compress/zstd"

	"github.com/lk2023060901/garden-serial/pkg/util/hardware"
)

// ZstdCompressor 持有独立的 encoder/decoder，生命周期由调用方管理。
type ZstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ Compressor = (*ZstdCompressor)(nil)

type zstdOptions struct {
	concurrency int
	level       zstd.EncoderLevel
	maxMemory   uint64
}

// ZstdOption 调整 ZstdCompressor 的参数。
type ZstdOption func(*zstdOptions)

// WithConcurrency n <= 0 时使用主机 CPU 核心数。
func WithConcurrency(n int) ZstdOption {
	return func(o *zstdOptions) { o.concurrency = n }
}

func WithLevel(level zstd.EncoderLevel) ZstdOption {
	return func(o *zstdOptions) { o.level = level }
}

// WithMaxDecodedSize 限制单帧解压后的大小，防止压缩炸弹。
func WithMaxDecodedSize(n uint64) ZstdOption {
	return func(o *zstdOptions) { o.maxMemory = n }
}

func NewZstdCompressor(opts ...ZstdOption) (*ZstdCompressor, error) {
	o := zstdOptions{level: zstd.SpeedDefault, maxMemory: 64 << 20}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency <= 0 {
		o.concurrency = hardware.GetCPUNum()
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithZeroFrames(true),
		zstd.WithEncoderConcurrency(o.concurrency),
		zstd.WithEncoderLevel(o.level),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(o.concurrency),
		zstd.WithDecoderMaxMemory(o.maxMemory),
	)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &ZstdCompressor{enc: enc, dec: dec}, nil
}

func (c *ZstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	if c == nil || c.enc == nil {
		return nil, zstd.ErrEncoderClosed
	}
	return c.enc.EncodeAll(src, dst[:0]), nil
}

func (c *ZstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	if c == nil || c.dec == nil {
		return nil, zstd.ErrDecoderClosed
	}
	return c.dec.DecodeAll(src, dst[:0])
}

// Close 之后再使用将返回 ErrEncoderClosed/ErrDecoderClosed。
func (c *ZstdCompressor) Close() {
	if c == nil {
		return
	}
	if c.enc != nil {
		_ = c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}

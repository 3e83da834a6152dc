package codec

import (
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/garden-serial/internal/network/compressor"
	"github.com/lk2023060901/garden-serial/internal/network/framer"
	"github.com/lk2023060901/garden-serial/internal/network/serializer"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// Codec 负责业务对象与网络帧之间的转换。
//
// 写出：msg --> serializer --> [compress?] --> Envelope --> framer.WriteFrame
//
// 读入：framer.ReadFrame --> Envelope --> [decompress?] --> serializer --> msg
type Codec interface {
	// Encode 序列化 msg 并写出一帧，header 的 Flags/Size 由内部填写。
	Encode(w io.Writer, header *framer.Header, msg any) error

	// Decode 读取一帧并解码到 msg；msg 为 nil 时只返回帧头。
	Decode(r io.Reader, msg any) (*framer.Header, error)

	// DecodeRaw 返回帧头和已解压的 payload，不做反序列化。
	DecodeRaw(r io.Reader) (*framer.Header, []byte, error)
}

// Options 用于构造 Codec 的依赖注入参数。
type Options struct {
	Framer     framer.Framer
	Serializer serializer.Serializer
	Compressor compressor.Compressor // 允许为 nil（内部会用 NopCompressor）

	EnableCompression bool
	// MinCompressSize 小于该长度的 payload 不压缩。
	MinCompressSize int
}

type codec struct {
	framer     framer.Framer
	serializer serializer.Serializer
	compressor compressor.Compressor

	compress bool
	minSize  int
}

var _ Codec = (*codec)(nil)

func New(opts Options) (Codec, error) {
	if opts.Framer == nil {
		return nil, merr.WrapErrParameterMissing("framer")
	}
	if opts.Serializer == nil {
		return nil, merr.WrapErrParameterMissing("serializer")
	}

	c := &codec{
		framer:     opts.Framer,
		serializer: opts.Serializer,
		compressor: opts.Compressor,
		compress:   opts.EnableCompression,
		minSize:    opts.MinCompressSize,
	}
	if c.compressor == nil {
		c.compressor = compressor.NopCompressor{}
	}
	return c, nil
}

func (c *codec) Encode(w io.Writer, header *framer.Header, msg any) error {
	if w == nil {
		return merr.WrapErrParameterMissing("writer")
	}
	if header == nil {
		return merr.WrapErrParameterMissing("header")
	}

	body, err := c.serializer.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "codec: marshal")
	}

	// 复用 header 时清理旧的压缩标记
	header.Flags &^= framer.FlagCompressed
	if c.compress && len(body) > 0 && len(body) >= c.minSize {
		packed, err := c.compressor.Compress(nil, body)
		if err != nil {
			return errors.Wrap(err, "codec: compress")
		}
		body = packed
		header.Flags |= framer.FlagCompressed
	}

	env := &framer.Envelope{Header: *header, Payload: body}
	if err := c.framer.WriteFrame(w, env); err != nil {
		return err
	}
	header.Size = env.Header.Size
	return nil
}

func (c *codec) DecodeRaw(r io.Reader) (*framer.Header, []byte, error) {
	if r == nil {
		return nil, nil, merr.WrapErrParameterMissing("reader")
	}
	env, err := c.framer.ReadFrame(r)
	if err != nil {
		return nil, nil, err
	}

	data := env.Payload
	if env.Header.Flags&framer.FlagCompressed != 0 {
		if !c.compress {
			return nil, nil, merr.WrapErrOperationNotSupported("decompress", "compressed payload but compression disabled")
		}
		plain, err := c.compressor.Decompress(nil, data)
		if err != nil {
			return nil, nil, merr.WrapErrStreamCorrupted(err.Error(), "codec: decompress")
		}
		data = plain
	}
	return &env.Header, data, nil
}

func (c *codec) Decode(r io.Reader, msg any) (*framer.Header, error) {
	header, data, err := c.DecodeRaw(r)
	if err != nil {
		return nil, err
	}
	if msg != nil {
		if err := c.serializer.Unmarshal(data, msg); err != nil {
			return header, errors.Wrap(err, "codec: unmarshal")
		}
	}
	return header, nil
}

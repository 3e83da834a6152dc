package framer

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// Header 帧头，固定 24 字节大端编码：op(4) | seq(8) | flags(8) | size(4)。
type Header struct {
	Op    uint32
	Seq   uint64
	Flags uint64
	// Size 等于 Payload 的长度，写出时自动修正。
	Size uint32
}

const headerSize = 24

// 帧头标志位。
const (
	FlagCompressed uint64 = 1 << iota
)

// Envelope 一帧的内容。
type Envelope struct {
	Header  Header
	Payload []byte
}

// Framer 抽象了基于 Envelope 的打包/解包能力。
type Framer interface {
	WriteFrame(w io.Writer, env *Envelope) error
	ReadFrame(r io.Reader) (*Envelope, error)
}

// LengthPrefixedFramer 使用长度前缀（4 字节大端）作为帧边界，
// 长度包括帧头与 payload。适用于 TCP 等基于流的连接。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为 0 时使用 defaultMaxFrameSize。
	MaxFrameSize uint32
}

const defaultMaxFrameSize uint32 = 16 * 1024 * 1024 // 16MB

var _ Framer = (*LengthPrefixedFramer)(nil)

func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = defaultMaxFrameSize
	}
	return &LengthPrefixedFramer{MaxFrameSize: maxFrameSize}
}

// WriteFrame 帧头与 payload 先拼到池化缓冲中，再一次写出，避免并发写出时交错。
func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, env *Envelope) error {
	if env == nil {
		return merr.WrapErrParameterMissing("envelope")
	}
	env.Header.Size = uint32(len(env.Payload))
	length := uint32(headerSize + len(env.Payload))
	if length > f.effectiveMaxSize() {
		return merr.WrapErrParameterTooLarge("frame", int(length), int(f.effectiveMaxSize()))
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = binary.BigEndian.AppendUint32(buf.B, length)
	buf.B = appendHeader(buf.B, &env.Header)
	buf.B = append(buf.B, env.Payload...)
	if _, err := w.Write(buf.B); err != nil {
		return errors.Wrap(err, "framer: write frame")
	}
	return nil
}

// ReadFrame 返回的 Payload 由调用方持有，不与池化缓冲共享内存。
func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) (*Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, errors.Wrap(err, "framer: read length")
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length > f.effectiveMaxSize() {
		return nil, merr.WrapErrParameterTooLarge("frame", int(length), int(f.effectiveMaxSize()))
	}
	if length < headerSize {
		return nil, merr.WrapErrStreamCorrupted("frame shorter than header")
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if cap(buf.B) < int(length) {
		buf.B = make([]byte, length)
	}
	buf.B = buf.B[:length]
	if _, err := io.ReadFull(r, buf.B); err != nil {
		return nil, errors.Wrap(err, "framer: read body")
	}

	env := &Envelope{Header: parseHeader(buf.B[:headerSize])}
	if int(env.Header.Size) != int(length)-headerSize {
		return nil, merr.WrapErrStreamCorrupted("frame size mismatch")
	}
	if env.Header.Size > 0 {
		env.Payload = append([]byte(nil), buf.B[headerSize:]...)
	}
	return env, nil
}

func (f *LengthPrefixedFramer) effectiveMaxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return defaultMaxFrameSize
	}
	return f.MaxFrameSize
}

func appendHeader(b []byte, h *Header) []byte {
	b = binary.BigEndian.AppendUint32(b, h.Op)
	b = binary.BigEndian.AppendUint64(b, h.Seq)
	b = binary.BigEndian.AppendUint64(b, h.Flags)
	return binary.BigEndian.AppendUint32(b, h.Size)
}

func parseHeader(b []byte) Header {
	return Header{
		Op:    binary.BigEndian.Uint32(b[0:4]),
		Seq:   binary.BigEndian.Uint64(b[4:12]),
		Flags: binary.BigEndian.Uint64(b[12:20]),
		Size:  binary.BigEndian.Uint32(b[20:24]),
	}
}

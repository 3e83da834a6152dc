// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/exp/constraints"

	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// autoFlushSize 挂接了 sink 的 Writer 在缓冲超过该大小时自动写出。
const autoFlushSize = 64 << 10

type flusher interface {
	Flush() error
}

// Writer 将基础值追加到池化缓冲中，并在 Flush 时写入 sink。
// 写入方法不返回错误，sink 的写错误会被记录并由 Flush 返回。
type Writer struct {
	sink    io.Writer
	bb      *bytebufferpool.ByteBuffer
	flushed int64
	err     error
}

// NewWriter 创建写入 sink 的 Writer；sink 为 nil 时所有数据保留在缓冲中。
func NewWriter(sink io.Writer) *Writer {
	return &Writer{
		sink: sink,
		bb:   bytebufferpool.Get(),
	}
}

// NewBufferWriter 创建只写缓冲的 Writer，通过 Bytes 取结果。
func NewBufferWriter() *Writer {
	return NewWriter(nil)
}

// Bytes 返回尚未写出的缓冲内容，下一次写入前有效。
func (w *Writer) Bytes() []byte {
	return w.bb.B
}

// Len 返回累计写入的字节数，包括已经写出到 sink 的部分。
func (w *Writer) Len() int64 {
	return w.flushed + int64(len(w.bb.B))
}

// Flush 将缓冲写入 sink；sink 实现 Flush 时一并调用。
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.sink == nil {
		return nil
	}
	if len(w.bb.B) > 0 {
		n, err := w.sink.Write(w.bb.B)
		w.flushed += int64(n)
		if err != nil {
			w.err = merr.WrapErrIoFailed("sink", err)
			return w.err
		}
		w.bb.Reset()
	}
	if f, ok := w.sink.(flusher); ok {
		if err := f.Flush(); err != nil {
			w.err = merr.WrapErrIoFailed("sink", err)
			return w.err
		}
	}
	return nil
}

// Reset 丢弃缓冲与错误状态并切换到新的 sink。
func (w *Writer) Reset(sink io.Writer) {
	w.sink = sink
	w.flushed = 0
	w.err = nil
	w.bb.Reset()
}

// Release 归还缓冲，之后不能再使用该 Writer。
func (w *Writer) Release() {
	if w.bb != nil {
		bytebufferpool.Put(w.bb)
		w.bb = nil
	}
}

func (w *Writer) grow() {
	if w.sink != nil && w.err == nil && len(w.bb.B) >= autoFlushSize {
		n, err := w.sink.Write(w.bb.B)
		w.flushed += int64(n)
		if err != nil {
			w.err = merr.WrapErrIoFailed("sink", err)
			return
		}
		w.bb.Reset()
	}
}

func (w *Writer) WriteUvarint(v uint64) {
	w.bb.B = binary.AppendUvarint(w.bb.B, v)
	w.grow()
}

// WriteVarint 有符号整数先做 zig-zag 变换再按 uvarint 写出。
func (w *Writer) WriteVarint(v int64) {
	w.bb.B = binary.AppendVarint(w.bb.B, v)
	w.grow()
}

func (w *Writer) WriteTag(tag byte) {
	w.bb.B = append(w.bb.B, tag)
	w.grow()
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteTag(1)
		return
	}
	w.WriteTag(0)
}

func (w *Writer) WriteFloat32(v float32) {
	w.bb.B = binary.LittleEndian.AppendUint32(w.bb.B, math.Float32bits(v))
	w.grow()
}

func (w *Writer) WriteFloat64(v float64) {
	w.bb.B = binary.LittleEndian.AppendUint64(w.bb.B, math.Float64bits(v))
	w.grow()
}

func (w *Writer) WriteString(s string) {
	w.WriteUvarint(uint64(len(s)) + 1)
	w.bb.B = append(w.bb.B, s...)
	w.grow()
}

// WriteBytes nil 切片写为 null，空切片写为长度 0。
func (w *Writer) WriteBytes(b []byte) {
	if b == nil {
		w.WriteNull()
		return
	}
	w.WriteUvarint(uint64(len(b)) + 1)
	w.bb.B = append(w.bb.B, b...)
	w.grow()
}

// WriteNull 写出空的字符串或字节序列。
func (w *Writer) WriteNull() {
	w.WriteUvarint(0)
}

// WriteRaw 原样追加字节，不带长度前缀。
func (w *Writer) WriteRaw(p []byte) {
	w.bb.B = append(w.bb.B, p...)
	w.grow()
}

// WriteUint 按 uvarint 写出任意宽度的无符号整数。
func WriteUint[T constraints.Unsigned](w *Writer, v T) {
	w.WriteUvarint(uint64(v))
}

// WriteInt 按 zig-zag varint 写出任意宽度的有符号整数。
func WriteInt[T constraints.Signed](w *Writer, v T) {
	w.WriteVarint(int64(v))
}

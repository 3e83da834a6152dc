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
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"

	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// Reader 从字节源读取基础值，所有读取在数据不足时返回 ErrTruncatedStream。
type Reader struct {
	src       io.ByteScanner
	raw       io.Reader
	off       int64
	maxLength int
}

// NewReader 在 r 上创建 Reader；r 不支持按字节读取时使用 bufio 包装。
func NewReader(r io.Reader) *Reader {
	type byteSource interface {
		io.Reader
		io.ByteScanner
	}
	bs, ok := r.(byteSource)
	if !ok {
		bs = bufio.NewReader(r)
	}
	return &Reader{src: bs, raw: bs, maxLength: DefaultMaxLength}
}

// NewBytesReader 从内存中的字节序列读取。
func NewBytesReader(b []byte) *Reader {
	br := bytes.NewReader(b)
	return &Reader{src: br, raw: br, maxLength: DefaultMaxLength}
}

// SetMaxLength 设置长度前缀允许的最大值，超过时返回 ErrStreamCorrupted。
func (r *Reader) SetMaxLength(n int) {
	if n > 0 {
		r.maxLength = n
	}
}

func (r *Reader) MaxLength() int {
	return r.maxLength
}

// Offset 返回已经读取的字节数。
func (r *Reader) Offset() int64 {
	return r.off
}

// AtEOF 判断字节源是否已经读完，不消费数据。
func (r *Reader) AtEOF() bool {
	if _, err := r.src.ReadByte(); err != nil {
		return true
	}
	_ = r.src.UnreadByte()
	return false
}

func (r *Reader) fail(err error, need int) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return merr.WrapErrTruncatedStream(r.off, need)
	}
	return merr.WrapErrIoFailed("source", err)
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.src.ReadByte()
	if err != nil {
		return 0, r.fail(err, 1)
	}
	r.off++
	return b, nil
}

func (r *Reader) ReadTag() (byte, error) {
	return r.ReadByte()
}

func (r *Reader) ReadUvarint() (uint64, error) {
	var x uint64
	var s uint
	for i := 0; i < binary.MaxVarintLen64; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			if i == binary.MaxVarintLen64-1 && b > 1 {
				break
			}
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, merr.WrapErrStreamCorrupted("varint overflows 64 bits", fmt.Sprintf("offset=%d", r.off))
}

func (r *Reader) ReadVarint() (int64, error) {
	ux, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	x := int64(ux >> 1)
	if ux&1 != 0 {
		x = ^x
	}
	return x, nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, merr.WrapErrStreamCorrupted(fmt.Sprintf("invalid bool byte %#x", b))
	}
}

// ReadFull 读取恰好 n 个字节。
func (r *Reader) ReadFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r.raw, buf)
	r.off += int64(read)
	if err != nil {
		return nil, r.fail(err, n-read)
	}
	return buf, nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	buf, err := r.ReadFull(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	buf, err := r.ReadFull(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// ReadLength 读取集合长度并做上限检查。
func (r *Reader) ReadLength() (int, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(r.maxLength) {
		return 0, merr.WrapErrStreamCorrupted(fmt.Sprintf("length %d exceeds limit %d", n, r.maxLength))
	}
	return int(n), nil
}

// ReadBytes 读取带长度前缀的字节序列，null 返回 nil。
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadLength()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return r.ReadFull(n - 1)
}

// ReadString 读取字符串，null 读为空字符串。
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadUint 读取 uvarint 并检查是否溢出目标宽度。
func ReadUint[T constraints.Unsigned](r *Reader) (T, error) {
	v, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	t := T(v)
	if uint64(t) != v {
		return 0, merr.WrapErrStreamCorrupted(fmt.Sprintf("value %d overflows %T", v, t))
	}
	return t, nil
}

// ReadInt 读取 zig-zag varint 并检查是否溢出目标宽度。
func ReadInt[T constraints.Signed](r *Reader) (T, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	t := T(v)
	if int64(t) != v {
		return 0, merr.WrapErrStreamCorrupted(fmt.Sprintf("value %d overflows %T", v, t))
	}
	return t, nil
}

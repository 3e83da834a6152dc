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

package serial

import (
	"bytes"
	"io"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/metrics"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/serial/wire"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
	"github.com/lk2023060901/garden-serial/pkg/util/typeutil"
)

// Encoder 一个写入会话，对应一条连接。同一会话内每个类型标识只携带一次描述符，
// 引用表只在一次 Encode 调用内有效。Encoder 不能并发使用。
type Encoder struct {
	repo   *Repository
	sink   io.Writer
	w      *wire.Writer
	refs   *writeRefs
	sent   typeutil.Set[schema.UID]
	id     string
	logger *log.MLogger
}

// NewEncoder 创建写入 sink 的会话，每次 Encode 结束时刷新。
func (r *Repository) NewEncoder(sink io.Writer) *Encoder {
	e := r.newEncoder(wire.NewWriter(sink))
	e.sink = sink
	return e
}

func (r *Repository) newEncoder(w *wire.Writer) *Encoder {
	id := uuid.NewString()
	return &Encoder{
		repo:   r,
		w:      w,
		refs:   newWriteRefs(),
		sent:   typeutil.NewSet[schema.UID](),
		id:     id,
		logger: r.Logger().With(log.FieldSession(id)),
	}
}

// SessionID 用于关联两端日志。
func (e *Encoder) SessionID() string {
	return e.id
}

// Encode 写出一个顶层值并刷新到 sink。
// 返回错误后流的状态不确定，需要 Reset 后才能继续使用。
func (e *Encoder) Encode(v any) error {
	start := e.w.Len()
	if err := e.encode(v); err != nil {
		e.logger.Debug("encode failed", zap.Error(err))
		return err
	}
	metrics.SerialBytes.WithLabelValues(metrics.DirectionEncode).Add(float64(e.w.Len() - start))
	return e.w.Flush()
}

func (e *Encoder) encode(v any) error {
	e.refs.reset()
	return e.writeSlot(reflect.ValueOf(&v).Elem())
}

// Reset 丢弃缓冲与会话状态，之后写出的类型会重新携带描述符。
func (e *Encoder) Reset() {
	e.refs.reset()
	e.sent.Clear()
	e.w.Reset(e.sink)
}

// Close 归还缓冲，之后不能再使用。
func (e *Encoder) Close() error {
	err := e.w.Flush()
	e.w.Release()
	return err
}

// writeSlot 写出一个对象槽位：空引用、回指或者带类型标识的对象。
func (e *Encoder) writeSlot(v reflect.Value) error {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			e.w.WriteTag(wire.TagNull)
			return nil
		}
		v = v.Elem()
	}

	tag := wire.TagValue
	target := v
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			e.w.WriteTag(wire.TagNull)
			return nil
		}
		if e.writeRef(v) {
			return nil
		}
		tag = wire.TagPointer
		target = v.Elem()
	case reflect.Map:
		if v.IsNil() {
			e.w.WriteTag(wire.TagNull)
			return nil
		}
		if e.writeRef(v) {
			return nil
		}
	case reflect.Slice:
		if v.IsNil() {
			e.w.WriteTag(wire.TagNull)
			return nil
		}
		// 切片按底层数组与长度识别，自引用的切片因此可以回指
		if e.writeRef(v) {
			return nil
		}
	default:
		e.refs.skip()
	}

	if target.Type() == genericObjectType {
		return e.writeGenericObject(tag, target)
	}
	ser, err := e.repo.Resolve(target.Type())
	if err != nil {
		return err
	}
	e.writeHeader(tag, ser.UID(), ser.Descriptor())
	return ser.Write(e, target)
}

func (e *Encoder) writeRef(v reflect.Value) bool {
	if idx, ok := e.refs.lookup(v); ok {
		e.w.WriteTag(wire.TagRef)
		e.w.WriteUvarint(uint64(idx))
		return true
	}
	e.refs.track(v)
	return false
}

// writeHeader 会话内首次出现的非保留标识后面紧跟描述符。
func (e *Encoder) writeHeader(tag byte, uid schema.UID, desc *schema.TypeDescriptor) {
	if uid.Reserved() || e.sent.Contain(uid) {
		e.w.WriteTag(tag)
		e.w.WriteUvarint(uint64(uid))
		return
	}
	e.sent.Insert(uid)
	e.w.WriteTag(tag | wire.FlagDescriptor)
	e.w.WriteUvarint(uint64(uid))
	schema.WriteDescriptor(e.w, desc)
}

func (e *Encoder) writeGenericObject(tag byte, v reflect.Value) error {
	obj := v.Interface().(GenericObject)
	if obj.Descriptor == nil || obj.Descriptor.Kind != schema.Struct {
		return merr.WrapErrParameterInvalidMsg("generic object without struct descriptor")
	}
	uid := obj.UID
	if uid == 0 {
		uid = schema.Fingerprint(obj.Descriptor)
	}
	e.writeHeader(tag, uid, obj.Descriptor)
	return newGenericStructSerializer(uid, obj.Descriptor).Write(e, v)
}

// writeValue 按类别写出字段或元素，通用路径每次调用都做分派。
func (e *Encoder) writeValue(kind schema.Kind, v reflect.Value) error {
	if !kind.Primitive() {
		return e.writeSlot(v)
	}
	var names []string
	if kind == schema.Enum {
		names, _ = e.repo.enumNames(v.Type())
	}
	return writeRaw(e.w, kind, v, names)
}

// writeAny 写出泛型表示中的值。
func (e *Encoder) writeAny(kind schema.Kind, x any) error {
	if !kind.Primitive() {
		return e.writeSlot(reflect.ValueOf(&x).Elem())
	}
	if x == nil {
		switch kind {
		case schema.Bytes, schema.Custom:
			e.w.WriteNull()
			return nil
		}
		return merr.WrapErrParameterInvalidMsg("nil value for %s field", kind)
	}
	return e.writeValue(kind, reflect.ValueOf(x))
}

// Marshal 将 v 编码为独立的字节序列，携带所有用到的描述符。
func (r *Repository) Marshal(v any) ([]byte, error) {
	w := wire.NewBufferWriter()
	defer w.Release()
	e := r.newEncoder(w)
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	return bytes.Clone(w.Bytes()), nil
}

// Size 返回 Marshal(v) 的长度，不保留编码结果。
func (r *Repository) Size(v any) (int, error) {
	w := wire.NewWriter(io.Discard)
	defer w.Release()
	e := r.newEncoder(w)
	if err := e.encode(v); err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return int(w.Len()), nil
}

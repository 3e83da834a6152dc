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
	"fmt"
	"io"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/metrics"
	"github.com/lk2023060901/garden-serial/pkg/serial/evolution"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/serial/wire"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// Decoder 一个读取会话。流中携带的描述符登记到 Repository，
// 引用表只在一次 Decode 调用内有效。Decoder 不能并发使用。
type Decoder struct {
	repo   *Repository
	r      *wire.Reader
	refs   readRefs
	id     string
	logger *log.MLogger
}

func (r *Repository) NewDecoder(src io.Reader) *Decoder {
	return r.newDecoder(wire.NewReader(src))
}

func (r *Repository) newDecoder(rd *wire.Reader) *Decoder {
	rd.SetMaxLength(r.cfg.MaxLength)
	id := uuid.NewString()
	return &Decoder{
		repo:   r,
		r:      rd,
		id:     id,
		logger: r.Logger().With(log.FieldSession(id)),
	}
}

func (d *Decoder) SessionID() string {
	return d.id
}

// Reset 切换到新的数据源，会话中已登记的描述符仍然保留在 Repository 中。
func (d *Decoder) Reset(src io.Reader) {
	d.r = wire.NewReader(src)
	d.r.SetMaxLength(d.repo.cfg.MaxLength)
	d.refs.reset()
}

// Offset 返回会话累计读取的字节数。
func (d *Decoder) Offset() int64 {
	return d.r.Offset()
}

// Decode 读取一个顶层值到 v，v 必须是非空指针。
// 目标类型与流中类型不同时按结构演进规则读取。
func (d *Decoder) Decode(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return merr.WrapErrParameterInvalidMsg("decode target must be a non-nil pointer, got %T", v)
	}
	d.refs.reset()
	start := d.r.Offset()
	err := d.readSlot(rv.Elem())
	metrics.SerialBytes.WithLabelValues(metrics.DirectionDecode).Add(float64(d.r.Offset() - start))
	if err != nil {
		d.logger.Debug("decode failed", zap.Int64("offset", d.r.Offset()), zap.Error(err))
	}
	return err
}

// DecodeAny 按流中的类型读取，本地未知的结构体得到 *GenericObject 或 GenericObject。
func (d *Decoder) DecodeAny() (any, error) {
	var x any
	if err := d.Decode(&x); err != nil {
		return nil, err
	}
	return x, nil
}

// readSlot 读取一个对象槽位到可设置的 v。
func (d *Decoder) readSlot(v reflect.Value) error {
	tag, err := d.r.ReadTag()
	if err != nil {
		return err
	}
	base, withDesc := wire.SplitTag(tag)
	switch base {
	case wire.TagNull:
		v.Set(reflect.Zero(v.Type()))
		return nil
	case wire.TagRef:
		idx, err := d.r.ReadUvarint()
		if err != nil {
			return err
		}
		obj, err := d.refs.get(idx)
		if err != nil {
			return err
		}
		return assignRef(v, obj)
	case wire.TagValue, wire.TagPointer:
	default:
		return merr.WrapErrStreamCorrupted(fmt.Sprintf("unknown tag %#x", tag), fmt.Sprintf("offset=%d", d.r.Offset()-1))
	}

	raw, err := d.r.ReadUvarint()
	if err != nil {
		return err
	}
	uid := schema.UID(raw)
	if withDesc {
		desc, err := schema.ReadDescriptor(d.r)
		if err != nil {
			return err
		}
		if err := d.repo.Provide(uid, desc); err != nil {
			return err
		}
	}
	idx := d.refs.reserve()
	return d.readObject(v, base == wire.TagPointer, uid, idx)
}

// assignRef 回指的对象以指针、映射或切片的位置登记。
func assignRef(v reflect.Value, obj reflect.Value) error {
	t := v.Type()
	switch {
	case obj.Type().AssignableTo(t):
		v.Set(obj)
	case obj.Kind() == reflect.Pointer && obj.Elem().Type().AssignableTo(t):
		v.Set(obj.Elem())
	default:
		return merr.WrapErrStreamCorrupted(fmt.Sprintf("reference to %s cannot be assigned to %s", obj.Type(), t))
	}
	return nil
}

func (d *Decoder) readObject(v reflect.Value, pointer bool, uid schema.UID, idx int) error {
	b, err := d.repo.bindingFor(uid)
	if err != nil {
		return err
	}
	t := v.Type()
	switch {
	case t.Kind() == reflect.Interface:
		return d.readNatural(v, pointer, b, idx)
	case t.Kind() == reflect.Pointer && t != b.ser.Type():
		// 读取端字段为指针，写入端可能是值，两种情况都分配新对象。
		obj := reflect.New(t.Elem())
		d.refs.set(idx, obj)
		if err := d.readInto(obj.Elem(), b); err != nil {
			return err
		}
		v.Set(obj)
		return nil
	default:
		if pointer && v.CanAddr() {
			d.refs.set(idx, v.Addr())
		} else {
			d.prepare(v, idx)
		}
		return d.readInto(v, b)
	}
}

// readNatural 目标为接口时，按绑定的类型构造对象。
func (d *Decoder) readNatural(v reflect.Value, pointer bool, b *binding, idx int) error {
	typ := b.ser.Type()
	var obj, target reflect.Value
	if pointer {
		obj = reflect.New(typ)
		target = obj.Elem()
		d.refs.set(idx, obj)
	} else {
		target = reflect.New(typ).Elem()
		obj = target
		d.prepare(target, idx)
	}
	if !obj.Type().AssignableTo(v.Type()) {
		return merr.WrapErrEvolution(b.stored.Name, "", obj.Type().String(), v.Type().String(), "decoded value does not implement the target interface")
	}
	plan, err := d.repo.planFor(b)
	if err != nil {
		return err
	}
	if err := b.ser.Read(d, target, plan); err != nil {
		return err
	}
	v.Set(obj)
	return nil
}

// prepare 映射在读取内容之前分配并登记，值对象直接登记。
func (d *Decoder) prepare(v reflect.Value, idx int) {
	if v.Kind() == reflect.Map && v.IsNil() {
		v.Set(reflect.MakeMap(v.Type()))
	}
	d.refs.set(idx, v)
}

// readInto 将类型标识对应的内容读入本地类型 v。
func (d *Decoder) readInto(v reflect.Value, b *binding) error {
	t := v.Type()
	if b.ser.Type() == t {
		plan, err := d.repo.planFor(b)
		if err != nil {
			return err
		}
		return b.ser.Read(d, v, plan)
	}

	stored := b.stored
	if t == genericObjectType {
		if stored.Kind != schema.Struct {
			return merr.WrapErrEvolution(stored.Name, "", stored.Kind.String(), schema.TypeName(t))
		}
		return newGenericStructSerializer(b.uid, stored).Read(d, v, nil)
	}
	if stored.Kind.Primitive() {
		tmp := reflect.New(b.ser.Type()).Elem()
		if err := b.ser.Read(d, tmp, nil); err != nil {
			return err
		}
		return d.assign(v, tmp.Interface())
	}

	local, err := d.repo.Resolve(t)
	if err != nil {
		return err
	}
	ld := local.Descriptor()
	if !evolution.CompatibleDescriptor(stored, ld) {
		return merr.WrapErrEvolution(stored.Name, "", stored.Kind.String(), ld.Kind.String(), "cannot read "+stored.Name+" as "+ld.Name)
	}
	var plan *evolution.Plan
	if stored.Kind == schema.Struct && ld.Kind == schema.Struct && b.uid != local.UID() {
		if plan, err = d.repo.resolver.Plan(b.uid, stored, ld); err != nil {
			return err
		}
	}
	return local.Read(d, v, plan)
}

// readValue 按本地类别读取字段或元素，通用路径每次调用都做分派。
func (d *Decoder) readValue(kind schema.Kind, v reflect.Value) error {
	if !kind.Primitive() {
		return d.readSlot(v)
	}
	var names []string
	if kind == schema.Enum {
		names, _ = d.repo.enumNames(v.Type())
	}
	return readRaw(d.r, kind, v, names)
}

// readAny 按存储类别读取并返回泛型表示。
func (d *Decoder) readAny(kind schema.Kind) (any, error) {
	if kind.Primitive() {
		return readRawAny(d.r, kind)
	}
	var x any
	if err := d.readSlot(reflect.ValueOf(&x).Elem()); err != nil {
		return nil, err
	}
	return x, nil
}

// Unmarshal 读取 Marshal 的输出，数据必须被完整消费。
func (r *Repository) Unmarshal(data []byte, v any) error {
	d := r.newDecoder(wire.NewBytesReader(data))
	if err := d.Decode(v); err != nil {
		return err
	}
	if !d.r.AtEOF() {
		return merr.WrapErrStreamCorrupted("trailing bytes after value", fmt.Sprintf("consumed=%d total=%d", d.r.Offset(), len(data)))
	}
	return nil
}

// Decode 按流中的类型读取 Marshal 的输出。
func (r *Repository) Decode(data []byte) (any, error) {
	var x any
	if err := r.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return x, nil
}

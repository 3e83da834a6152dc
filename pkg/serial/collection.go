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
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"github.com/lk2023060901/garden-serial/pkg/serial/evolution"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// elemCodec 集合元素的编解码，本地类别在生成序列化器时确定。
type elemCodec struct {
	kind  schema.Kind
	write writeFunc
	read  readFunc
}

func newElemCodec(repo *Repository, kind schema.Kind, t reflect.Type) elemCodec {
	w, r := compileCodec(repo, kind, t)
	return elemCodec{kind: kind, write: w, read: r}
}

// readFrom 按写入端记录的元素类别读取，与本地类别不同时先读成泛型值再转换。
func (c *elemCodec) readFrom(d *Decoder, stored schema.Kind, v reflect.Value) error {
	switch {
	case stored == c.kind:
		return c.read(d, v)
	case stored.Primitive():
		x, err := readRawAny(d.r, stored)
		if err != nil {
			return err
		}
		return d.assign(v, x)
	case c.kind.Primitive():
		// 存储端是对象槽位而本地是基础类别，只有接口元素中的基础值能读。
		x, err := d.readAny(stored)
		if err != nil {
			return err
		}
		return d.assign(v, x)
	default:
		return d.readSlot(v)
	}
}

func readElemKind(d *Decoder) (schema.Kind, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return schema.Invalid, err
	}
	k := schema.Kind(b)
	if !k.Valid() {
		return schema.Invalid, merr.WrapErrStreamCorrupted(fmt.Sprintf("invalid element kind %d", b))
	}
	return k, nil
}

// sequenceSerializer 切片与数组：[元素类别][长度][元素...]，两者格式相同可以互读。
type sequenceSerializer struct {
	serializerBase
	elem elemCodec
}

func newSequenceSerializer(repo *Repository, uid schema.UID, desc *schema.TypeDescriptor, t reflect.Type, strategy Strategy) *sequenceSerializer {
	return &sequenceSerializer{
		serializerBase: serializerBase{uid: uid, desc: desc, typ: t, strategy: strategy},
		elem:           newElemCodec(repo, desc.ElemKind, t.Elem()),
	}
}

func (s *sequenceSerializer) Write(e *Encoder, v reflect.Value) error {
	n := v.Len()
	e.w.WriteTag(byte(s.elem.kind))
	e.w.WriteUvarint(uint64(n))
	for i := 0; i < n; i++ {
		if err := s.elem.write(e, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (s *sequenceSerializer) Read(d *Decoder, v reflect.Value, _ *evolution.Plan) error {
	stored, err := readElemKind(d)
	if err != nil {
		return err
	}
	n, err := d.r.ReadLength()
	if err != nil {
		return err
	}

	if v.Kind() == reflect.Slice {
		v.Set(reflect.MakeSlice(v.Type(), n, n))
		for i := 0; i < n; i++ {
			if err := s.elem.readFrom(d, stored, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}

	// 数组长度不一致时，多出的元素丢弃，缺少的保持零值。
	v.Set(reflect.Zero(v.Type()))
	for i := 0; i < n; i++ {
		if i < v.Len() {
			if err := s.elem.readFrom(d, stored, v.Index(i)); err != nil {
				return err
			}
			continue
		}
		if _, err := d.readAny(stored); err != nil {
			return err
		}
	}
	return nil
}

// mapSerializer [键类别][值类别][长度][键 值]...，键按确定的顺序写出，
// 两种生成策略因此得到相同的字节。
type mapSerializer struct {
	serializerBase
	key  elemCodec
	elem elemCodec
}

func newMapSerializer(repo *Repository, uid schema.UID, desc *schema.TypeDescriptor, t reflect.Type, strategy Strategy) *mapSerializer {
	return &mapSerializer{
		serializerBase: serializerBase{uid: uid, desc: desc, typ: t, strategy: strategy},
		key:            newElemCodec(repo, desc.KeyKind, t.Key()),
		elem:           newElemCodec(repo, desc.ElemKind, t.Elem()),
	}
}

func (s *mapSerializer) Write(e *Encoder, v reflect.Value) error {
	e.w.WriteTag(byte(s.key.kind))
	e.w.WriteTag(byte(s.elem.kind))
	e.w.WriteUvarint(uint64(v.Len()))
	keys := v.MapKeys()
	slices.SortFunc(keys, compareValues)
	for _, k := range keys {
		if err := s.key.write(e, k); err != nil {
			return err
		}
		if err := s.elem.write(e, v.MapIndex(k)); err != nil {
			return err
		}
	}
	return nil
}

func (s *mapSerializer) Read(d *Decoder, v reflect.Value, _ *evolution.Plan) error {
	storedKey, err := readElemKind(d)
	if err != nil {
		return err
	}
	storedElem, err := readElemKind(d)
	if err != nil {
		return err
	}
	n, err := d.r.ReadLength()
	if err != nil {
		return err
	}
	t := v.Type()
	if v.IsNil() {
		v.Set(reflect.MakeMapWithSize(t, min(n, 1024)))
	}
	for i := 0; i < n; i++ {
		key := reflect.New(t.Key()).Elem()
		if err := s.key.readFrom(d, storedKey, key); err != nil {
			return err
		}
		if key.Kind() == reflect.Interface && !key.IsNil() && !key.Elem().Type().Comparable() {
			return merr.WrapErrUnsupportedType(key.Elem().Type().String(), "decoded map key is not comparable")
		}
		val := reflect.New(t.Elem()).Elem()
		if err := s.elem.readFrom(d, storedElem, val); err != nil {
			return err
		}
		v.SetMapIndex(key, val)
	}
	return nil
}

// slotSerializer 指针的指针或指向接口的指针，内容本身是一个对象槽位。
type slotSerializer struct {
	serializerBase
}

func (s *slotSerializer) Write(e *Encoder, v reflect.Value) error {
	return e.writeSlot(v)
}

func (s *slotSerializer) Read(d *Decoder, v reflect.Value, _ *evolution.Plan) error {
	return d.readSlot(v)
}

// compareValues 映射键的全序：同类型按值比较，接口先比较动态类型名。
func compareValues(a, b reflect.Value) int {
	if a.Kind() == reflect.Interface {
		return compareInterfaces(a, b)
	}
	switch a.Kind() {
	case reflect.Bool:
		switch {
		case a.Bool() == b.Bool():
			return 0
		case !a.Bool():
			return -1
		default:
			return 1
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	case reflect.String:
		return cmp.Compare(a.String(), b.String())
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return cmp.Compare(a.Pointer(), b.Pointer())
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if c := compareValues(a.Field(i), b.Field(i)); c != 0 {
				return c
			}
		}
		return 0
	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if c := compareValues(a.Index(i), b.Index(i)); c != 0 {
				return c
			}
		}
		return 0
	default:
		return 0
	}
}

func compareInterfaces(a, b reflect.Value) int {
	switch {
	case a.IsNil() && b.IsNil():
		return 0
	case a.IsNil():
		return -1
	case b.IsNil():
		return 1
	}
	ae, be := a.Elem(), b.Elem()
	if ae.Type() != be.Type() {
		return cmp.Compare(schema.TypeName(ae.Type()), schema.TypeName(be.Type()))
	}
	return compareValues(ae, be)
}

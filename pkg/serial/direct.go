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
	"reflect"
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/serial/wire"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// DirectGenerator 按预先计算的字段偏移直接读写对象内存，不经过 reflect 的可见性检查。
type DirectGenerator struct{}

func (DirectGenerator) Strategy() Strategy {
	return StrategyDirect
}

func (DirectGenerator) Generate(repo *Repository, uid schema.UID, desc *schema.TypeDescriptor) (Serializer, error) {
	t := desc.GoType()
	if t == nil || t.Kind() != reflect.Struct {
		return nil, merr.WrapErrUnsupportedType(desc.Name, "direct generator needs a struct type")
	}
	s := &structSerializer{
		serializerBase: serializerBase{uid: uid, desc: desc, typ: t, strategy: StrategyDirect},
		fields:         make([]fieldAccess, len(desc.Fields)),
		addressable:    true,
	}
	src := newSourceWriter(uid, desc, StrategyDirect)
	for i := range desc.Fields {
		f := &desc.Fields[i]
		s.fields[i] = directField(repo, f)
		src.field(f, directExpr(f))
	}
	s.source = src.String()
	return s, nil
}

type fieldPointer func(obj reflect.Value) unsafe.Pointer

func directField(repo *Repository, f *schema.FieldDescriptor) fieldAccess {
	off := f.Offset()
	ft := f.GoType()
	ptr := fieldPointer(func(obj reflect.Value) unsafe.Pointer {
		return unsafe.Add(obj.Addr().UnsafePointer(), off)
	})
	fa := fieldAccess{
		desc: f,
		value: func(obj reflect.Value) reflect.Value {
			return reflect.NewAt(ft, ptr(obj)).Elem()
		},
	}

	switch {
	case f.Kind == schema.Bool:
		fa.write = func(e *Encoder, obj reflect.Value) error {
			e.w.WriteBool(*(*bool)(ptr(obj)))
			return nil
		}
		fa.read = func(d *Decoder, obj reflect.Value) error {
			b, err := d.r.ReadBool()
			if err != nil {
				return err
			}
			*(*bool)(ptr(obj)) = b
			return nil
		}
	case f.Kind.Signed():
		fa.write, fa.read = directSigned(ft.Kind(), ptr)
	case f.Kind.Unsigned():
		fa.write, fa.read = directUnsigned(ft.Kind(), ptr)
	case f.Kind == schema.Float32:
		fa.write = func(e *Encoder, obj reflect.Value) error {
			e.w.WriteFloat32(*(*float32)(ptr(obj)))
			return nil
		}
		fa.read = func(d *Decoder, obj reflect.Value) error {
			x, err := d.r.ReadFloat32()
			if err != nil {
				return err
			}
			*(*float32)(ptr(obj)) = x
			return nil
		}
	case f.Kind == schema.Float64:
		fa.write = func(e *Encoder, obj reflect.Value) error {
			e.w.WriteFloat64(*(*float64)(ptr(obj)))
			return nil
		}
		fa.read = func(d *Decoder, obj reflect.Value) error {
			x, err := d.r.ReadFloat64()
			if err != nil {
				return err
			}
			*(*float64)(ptr(obj)) = x
			return nil
		}
	case f.Kind == schema.String:
		fa.write = func(e *Encoder, obj reflect.Value) error {
			e.w.WriteString(*(*string)(ptr(obj)))
			return nil
		}
		fa.read = func(d *Decoder, obj reflect.Value) error {
			s, err := d.r.ReadString()
			if err != nil {
				return err
			}
			*(*string)(ptr(obj)) = s
			return nil
		}
	case f.Kind == schema.Bytes:
		fa.write = func(e *Encoder, obj reflect.Value) error {
			e.w.WriteBytes(*(*[]byte)(ptr(obj)))
			return nil
		}
		fa.read = func(d *Decoder, obj reflect.Value) error {
			b, err := d.r.ReadBytes()
			if err != nil {
				return err
			}
			*(*[]byte)(ptr(obj)) = b
			return nil
		}
	}
	if fa.write != nil {
		return fa
	}

	w, r := compileCodec(repo, f.Kind, ft)
	fa.write = func(e *Encoder, obj reflect.Value) error {
		return w(e, fa.value(obj))
	}
	fa.read = func(d *Decoder, obj reflect.Value) error {
		return r(d, fa.value(obj))
	}
	return fa
}

func directSigned(k reflect.Kind, ptr fieldPointer) (func(*Encoder, reflect.Value) error, func(*Decoder, reflect.Value) error) {
	switch k {
	case reflect.Int8:
		return directInt[int8](ptr)
	case reflect.Int16:
		return directInt[int16](ptr)
	case reflect.Int32:
		return directInt[int32](ptr)
	case reflect.Int:
		return directInt[int](ptr)
	default:
		return directInt[int64](ptr)
	}
}

func directUnsigned(k reflect.Kind, ptr fieldPointer) (func(*Encoder, reflect.Value) error, func(*Decoder, reflect.Value) error) {
	switch k {
	case reflect.Uint8:
		return directUint[uint8](ptr)
	case reflect.Uint16:
		return directUint[uint16](ptr)
	case reflect.Uint32:
		return directUint[uint32](ptr)
	case reflect.Uint:
		return directUint[uint](ptr)
	default:
		return directUint[uint64](ptr)
	}
}

func directInt[T constraints.Signed](ptr fieldPointer) (func(*Encoder, reflect.Value) error, func(*Decoder, reflect.Value) error) {
	return func(e *Encoder, obj reflect.Value) error {
			wire.WriteInt(e.w, *(*T)(ptr(obj)))
			return nil
		}, func(d *Decoder, obj reflect.Value) error {
			x, err := wire.ReadInt[T](d.r)
			if err != nil {
				return err
			}
			*(*T)(ptr(obj)) = x
			return nil
		}
}

func directUint[T constraints.Unsigned](ptr fieldPointer) (func(*Encoder, reflect.Value) error, func(*Decoder, reflect.Value) error) {
	return func(e *Encoder, obj reflect.Value) error {
			wire.WriteUint(e.w, *(*T)(ptr(obj)))
			return nil
		}, func(d *Decoder, obj reflect.Value) error {
			x, err := wire.ReadUint[T](d.r)
			if err != nil {
				return err
			}
			*(*T)(ptr(obj)) = x
			return nil
		}
}

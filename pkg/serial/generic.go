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

	"github.com/lk2023060901/garden-serial/pkg/serial/evolution"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
)

// GenericSerializer 不做任何预编译，每次调用都按名称查找字段并按类别分派。
// 生成的序列化器校验失败时使用它。
type GenericSerializer struct {
	serializerBase
}

func NewGenericSerializer(uid schema.UID, desc *schema.TypeDescriptor) *GenericSerializer {
	return &GenericSerializer{
		serializerBase: serializerBase{uid: uid, desc: desc, typ: desc.GoType(), strategy: StrategyGeneric},
	}
}

func (s *GenericSerializer) lookup(i int) *schema.FieldDescriptor {
	f, _ := s.desc.Field(s.desc.Fields[i].Name)
	return f
}

func (s *GenericSerializer) Write(e *Encoder, v reflect.Value) error {
	for i := range s.desc.Fields {
		f := s.lookup(i)
		if err := e.writeValue(f.Kind, v.FieldByIndex(f.Index())); err != nil {
			return err
		}
	}
	return nil
}

func (s *GenericSerializer) Read(d *Decoder, v reflect.Value, plan *evolution.Plan) error {
	if plan != nil && !plan.Identity {
		return readWithPlan(d, v, plan, s)
	}
	for i := range s.desc.Fields {
		if err := s.readField(d, v, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *GenericSerializer) fieldValue(obj reflect.Value, i int) reflect.Value {
	return obj.FieldByIndex(s.lookup(i).Index())
}

func (s *GenericSerializer) readField(d *Decoder, obj reflect.Value, i int) error {
	f := s.lookup(i)
	return d.readValue(f.Kind, obj.FieldByIndex(f.Index()))
}

// GenericObject 本地没有对应类型的结构体，字段值按描述符顺序保存。
// 再次写出时使用原来的类型标识与描述符，可以原样转发给其他进程。
type GenericObject struct {
	UID        schema.UID
	Descriptor *schema.TypeDescriptor
	Values     []any
}

var genericObjectType = reflect.TypeOf(GenericObject{})

// Name 返回写入端的类型名。
func (o *GenericObject) Name() string {
	if o.Descriptor == nil {
		return ""
	}
	return o.Descriptor.Name
}

// Get 按字段名取值。
func (o *GenericObject) Get(name string) (any, bool) {
	if o.Descriptor == nil {
		return nil, false
	}
	_, i := o.Descriptor.Field(name)
	if i < 0 || i >= len(o.Values) {
		return nil, false
	}
	return o.Values[i], true
}

// Set 修改已有字段的值，字段不存在时返回 false。
func (o *GenericObject) Set(name string, v any) bool {
	if o.Descriptor == nil {
		return false
	}
	_, i := o.Descriptor.Field(name)
	if i < 0 || i >= len(o.Values) {
		return false
	}
	o.Values[i] = v
	return true
}

// genericStructSerializer 按流中的描述符读写 GenericObject。
type genericStructSerializer struct {
	serializerBase
}

func newGenericStructSerializer(uid schema.UID, desc *schema.TypeDescriptor) *genericStructSerializer {
	return &genericStructSerializer{
		serializerBase: serializerBase{uid: uid, desc: desc, typ: genericObjectType, strategy: StrategyPlaceholder},
	}
}

func (s *genericStructSerializer) Write(e *Encoder, v reflect.Value) error {
	obj := v.Interface().(GenericObject)
	for i := range s.desc.Fields {
		var x any
		if i < len(obj.Values) {
			x = obj.Values[i]
		}
		if err := e.writeAny(s.desc.Fields[i].Kind, x); err != nil {
			return err
		}
	}
	return nil
}

// Read 先设置外壳再读取字段，字段中回指自身的引用能拿到同一个对象。
func (s *genericStructSerializer) Read(d *Decoder, v reflect.Value, _ *evolution.Plan) error {
	values := make([]any, len(s.desc.Fields))
	v.Set(reflect.ValueOf(GenericObject{UID: s.uid, Descriptor: s.desc, Values: values}))
	for i := range s.desc.Fields {
		x, err := d.readAny(s.desc.Fields[i].Kind)
		if err != nil {
			return err
		}
		values[i] = x
	}
	return nil
}

// placeholderType 本地没有对应类型时读取使用的泛型表示。
func placeholderType(desc *schema.TypeDescriptor) reflect.Type {
	switch desc.Kind {
	case schema.Struct:
		return genericObjectType
	case schema.Slice, schema.Array:
		return reflect.TypeOf([]any(nil))
	case schema.Map:
		return reflect.TypeOf(map[any]any(nil))
	case schema.Pointer, schema.Interface:
		return anyType
	case schema.Bool:
		return reflect.TypeOf(false)
	case schema.Int8:
		return reflect.TypeOf(int8(0))
	case schema.Int16:
		return reflect.TypeOf(int16(0))
	case schema.Int32:
		return reflect.TypeOf(int32(0))
	case schema.Int64:
		return reflect.TypeOf(int64(0))
	case schema.Uint8:
		return reflect.TypeOf(uint8(0))
	case schema.Uint16:
		return reflect.TypeOf(uint16(0))
	case schema.Uint32:
		return reflect.TypeOf(uint32(0))
	case schema.Uint64:
		return reflect.TypeOf(uint64(0))
	case schema.Float32:
		return reflect.TypeOf(float32(0))
	case schema.Float64:
		return reflect.TypeOf(float64(0))
	case schema.Time:
		return timeType
	case schema.String, schema.Enum:
		return reflect.TypeOf("")
	default:
		return bytesType
	}
}

// newPlaceholder 只有描述符的类型，按泛型表示读写。
func newPlaceholder(repo *Repository, uid schema.UID, desc *schema.TypeDescriptor) Serializer {
	t := placeholderType(desc)
	switch desc.Kind {
	case schema.Struct:
		return newGenericStructSerializer(uid, desc)
	case schema.Slice, schema.Array:
		s := newSequenceSerializer(repo, uid, desc, t, StrategyPlaceholder)
		s.elem = newElemCodec(repo, schema.Interface, anyType)
		return s
	case schema.Map:
		s := newMapSerializer(repo, uid, desc, t, StrategyPlaceholder)
		s.key = newElemCodec(repo, schema.Interface, anyType)
		s.elem = newElemCodec(repo, schema.Interface, anyType)
		return s
	case schema.Pointer, schema.Interface:
		return &slotSerializer{serializerBase{uid: uid, desc: desc, typ: t, strategy: StrategyPlaceholder}}
	default:
		return newPrimitiveSerializer(uid, desc, t, StrategyPlaceholder)
	}
}

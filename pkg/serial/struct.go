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
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

type (
	writeFunc func(e *Encoder, v reflect.Value) error
	readFunc  func(d *Decoder, v reflect.Value) error
)

// compileCodec 在生成阶段按类别选定编解码函数，之后调用不再分派。
// 对象槽位在运行时按动态类型解析，嵌套类型因此可以延迟生成。
func compileCodec(repo *Repository, kind schema.Kind, t reflect.Type) (writeFunc, readFunc) {
	switch {
	case !kind.Primitive():
		return (*Encoder).writeSlot, (*Decoder).readSlot
	case kind == schema.Bool:
		return func(e *Encoder, v reflect.Value) error {
				e.w.WriteBool(v.Bool())
				return nil
			}, func(d *Decoder, v reflect.Value) error {
				return readRaw(d.r, kind, v, nil)
			}
	case kind.Signed():
		return func(e *Encoder, v reflect.Value) error {
				e.w.WriteVarint(v.Int())
				return nil
			}, func(d *Decoder, v reflect.Value) error {
				return readRaw(d.r, kind, v, nil)
			}
	case kind.Unsigned():
		return func(e *Encoder, v reflect.Value) error {
				e.w.WriteUvarint(v.Uint())
				return nil
			}, func(d *Decoder, v reflect.Value) error {
				return readRaw(d.r, kind, v, nil)
			}
	case kind == schema.String:
		return func(e *Encoder, v reflect.Value) error {
				e.w.WriteString(v.String())
				return nil
			}, func(d *Decoder, v reflect.Value) error {
				return readRaw(d.r, kind, v, nil)
			}
	}
	var names []string
	if kind == schema.Enum {
		names, _ = repo.enumNames(t)
	}
	return func(e *Encoder, v reflect.Value) error {
			return writeRaw(e.w, kind, v, names)
		}, func(d *Decoder, v reflect.Value) error {
			return readRaw(d.r, kind, v, names)
		}
}

// fieldSet 结构演进时按下标访问本地字段。
type fieldSet interface {
	fieldValue(obj reflect.Value, i int) reflect.Value
	readField(d *Decoder, obj reflect.Value, i int) error
}

// readWithPlan 按写入端的字段顺序读取，再为流中缺失的本地字段设置默认值。
func readWithPlan(d *Decoder, obj reflect.Value, plan *evolution.Plan, fs fieldSet) error {
	for i := range plan.Steps {
		step := &plan.Steps[i]
		switch step.Action {
		case evolution.ActionDiscard:
			if _, err := d.readAny(step.Stored.Kind); err != nil {
				return err
			}
		case evolution.ActionConvert:
			x, err := d.readAny(step.Stored.Kind)
			if err != nil {
				return err
			}
			local := &plan.Local.Fields[step.Target]
			y, err := step.Convert(x)
			if err != nil {
				return merr.WrapErrEvolution(plan.Local.Name, local.Name, step.Stored.Type, local.Type, err.Error())
			}
			if err := d.assign(fs.fieldValue(obj, step.Target), y); err != nil {
				return err
			}
		default:
			local := &plan.Local.Fields[step.Target]
			var err error
			switch {
			case local.Kind == step.Stored.Kind:
				err = fs.readField(d, obj, step.Target)
			case step.Stored.Kind.Primitive():
				var x any
				if x, err = readRawAny(d.r, step.Stored.Kind); err == nil {
					err = d.assign(fs.fieldValue(obj, step.Target), x)
				}
			default:
				err = d.readSlot(fs.fieldValue(obj, step.Target))
			}
			if err != nil {
				return err
			}
		}
	}
	for _, def := range plan.Defaults {
		if err := d.setDefault(fs.fieldValue(obj, def.Target), def.Default); err != nil {
			return err
		}
	}
	return nil
}

// fieldAccess 生成的单个字段读写函数。
type fieldAccess struct {
	desc  *schema.FieldDescriptor
	write func(e *Encoder, obj reflect.Value) error
	read  func(d *Decoder, obj reflect.Value) error
	value func(obj reflect.Value) reflect.Value
}

// structSerializer 两种生成策略共用的结构体序列化器，差别只在字段访问方式。
type structSerializer struct {
	serializerBase
	fields []fieldAccess
	// addressable 字段访问依赖对象地址，写出不可寻址的值时先复制。
	addressable bool
	source      string
}

func (s *structSerializer) Write(e *Encoder, v reflect.Value) error {
	if s.addressable && !v.CanAddr() {
		tmp := reflect.New(v.Type()).Elem()
		tmp.Set(v)
		v = tmp
	}
	for i := range s.fields {
		if err := s.fields[i].write(e, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *structSerializer) Read(d *Decoder, v reflect.Value, plan *evolution.Plan) error {
	if s.addressable && !v.CanAddr() {
		return merr.WrapErrUnsupportedType(s.desc.Name, "read target is not addressable")
	}
	if plan != nil && !plan.Identity {
		return readWithPlan(d, v, plan, s)
	}
	for i := range s.fields {
		if err := s.fields[i].read(d, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *structSerializer) fieldValue(obj reflect.Value, i int) reflect.Value {
	return s.fields[i].value(obj)
}

func (s *structSerializer) readField(d *Decoder, obj reflect.Value, i int) error {
	return s.fields[i].read(d, obj)
}

// Source 生成代码的可读形式，用于调试输出。
func (s *structSerializer) Source() string {
	return s.source
}

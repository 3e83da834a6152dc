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

	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// IndirectGenerator 通过 reflect 字段句柄访问字段，不依赖 unsafe。
type IndirectGenerator struct{}

func (IndirectGenerator) Strategy() Strategy {
	return StrategyIndirect
}

func (IndirectGenerator) Generate(repo *Repository, uid schema.UID, desc *schema.TypeDescriptor) (Serializer, error) {
	t := desc.GoType()
	if t == nil || t.Kind() != reflect.Struct {
		return nil, merr.WrapErrUnsupportedType(desc.Name, "indirect generator needs a struct type")
	}
	s := &structSerializer{
		serializerBase: serializerBase{uid: uid, desc: desc, typ: t, strategy: StrategyIndirect},
		fields:         make([]fieldAccess, len(desc.Fields)),
	}
	src := newSourceWriter(uid, desc, StrategyIndirect)
	for i := range desc.Fields {
		f := &desc.Fields[i]
		s.fields[i] = indirectField(repo, f)
		src.field(f, indirectExpr(f))
	}
	s.source = src.String()
	return s, nil
}

func indirectField(repo *Repository, f *schema.FieldDescriptor) fieldAccess {
	index := f.Index()
	value := func(obj reflect.Value) reflect.Value {
		return obj.FieldByIndex(index)
	}
	if len(index) == 1 {
		i := index[0]
		value = func(obj reflect.Value) reflect.Value {
			return obj.Field(i)
		}
	}
	w, r := compileCodec(repo, f.Kind, f.GoType())
	return fieldAccess{
		desc:  f,
		value: value,
		write: func(e *Encoder, obj reflect.Value) error {
			return w(e, value(obj))
		},
		read: func(d *Decoder, obj reflect.Value) error {
			return r(d, value(obj))
		},
	}
}

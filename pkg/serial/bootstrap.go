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
	"time"

	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
)

// 内置类型使用保留的类型标识，两端不需要交换描述符。
// 基础类型的标识等于其类别值。
const (
	uidInt schema.UID = 40 + iota
	uidUint
	uidAnySlice
	uidStringMap
	uidAnyMap
)

type builtin struct {
	uid schema.UID
	typ reflect.Type
}

func builtins() []builtin {
	return []builtin{
		{schema.UID(schema.Bool), reflect.TypeOf(false)},
		{schema.UID(schema.Int8), reflect.TypeOf(int8(0))},
		{schema.UID(schema.Int16), reflect.TypeOf(int16(0))},
		{schema.UID(schema.Int32), reflect.TypeOf(int32(0))},
		{schema.UID(schema.Int64), reflect.TypeOf(int64(0))},
		{schema.UID(schema.Uint8), reflect.TypeOf(uint8(0))},
		{schema.UID(schema.Uint16), reflect.TypeOf(uint16(0))},
		{schema.UID(schema.Uint32), reflect.TypeOf(uint32(0))},
		{schema.UID(schema.Uint64), reflect.TypeOf(uint64(0))},
		{schema.UID(schema.Float32), reflect.TypeOf(float32(0))},
		{schema.UID(schema.Float64), reflect.TypeOf(float64(0))},
		{schema.UID(schema.String), reflect.TypeOf("")},
		{schema.UID(schema.Bytes), reflect.TypeOf([]byte(nil))},
		{schema.UID(schema.Time), reflect.TypeOf(time.Time{})},
		{uidInt, reflect.TypeOf(0)},
		{uidUint, reflect.TypeOf(uint(0))},
		{uidAnySlice, reflect.TypeOf([]any(nil))},
		{uidStringMap, reflect.TypeOf(map[string]any(nil))},
		{uidAnyMap, reflect.TypeOf(map[any]any(nil))},
	}
}

func (r *Repository) bootstrap() error {
	for _, b := range builtins() {
		desc, err := schema.Build(b.typ)
		if err != nil {
			return err
		}
		var ser Serializer
		switch desc.Kind {
		case schema.Slice:
			ser = newSequenceSerializer(r, b.uid, desc, b.typ, StrategyBootstrap)
		case schema.Map:
			ser = newMapSerializer(r, b.uid, desc, b.typ, StrategyBootstrap)
		default:
			ser = newPrimitiveSerializer(b.uid, desc, b.typ, StrategyBootstrap)
		}
		if _, err := r.install(b.typ, ser); err != nil {
			return err
		}
	}
	return nil
}

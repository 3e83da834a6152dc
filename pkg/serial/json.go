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
	"reflect"

	"github.com/bytedance/sonic"

	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// 整数解析为 int64，写出后与 Go 中的 int64 字段兼容。
var jsonDecodeAPI = sonic.Config{UseInt64: true, ValidateString: true}.Froze()

// FromJSON 将 JSON 解析为可直接写出的动态值：对象为 map[string]any，数组为 []any，
// 整数为 int64，其余数字为 float64。
func FromJSON(data []byte) (any, error) {
	var v any
	if err := jsonDecodeAPI.Unmarshal(data, &v); err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("invalid json input: %s", err.Error())
	}
	return v, nil
}

// ToJSON 将任意值（包括解码得到的 GenericObject）渲染为 JSON，用于调试与命令行输出。
// 泛型对象输出为带 "@type" 的对象，回指当前路径上的对象输出为 {"@cycle": 类型名}。
func (r *Repository) ToJSON(v any) ([]byte, error) {
	tree := r.jsonTree(reflect.ValueOf(v), make(map[refKey]bool))
	return sonic.ConfigStd.MarshalIndent(tree, "", "  ")
}

func (r *Repository) jsonTree(v reflect.Value, path map[refKey]bool) any {
	if !v.IsValid() {
		return nil
	}
	t := v.Type()
	switch t {
	case genericObjectType:
		obj := v.Interface().(GenericObject)
		return r.genericTree(&obj, path)
	case timeType:
		return v.Interface()
	}
	if names, ok := r.enumNames(t); ok {
		var x int64
		if isIntKind(t.Kind()) {
			x = v.Int()
		} else {
			x = int64(v.Uint())
		}
		if x >= 0 && x < int64(len(names)) {
			return names[x]
		}
		return x
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return r.jsonTree(v.Elem(), path)
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		p := keyOf(v)
		if path[p] {
			return map[string]any{"@cycle": t.Elem().String()}
		}
		path[p] = true
		defer delete(path, p)
		if t.Elem() == genericObjectType {
			return r.genericTree(v.Interface().(*GenericObject), path)
		}
		return r.jsonTree(v.Elem(), path)
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		p := keyOf(v)
		if path[p] {
			return map[string]any{"@cycle": t.String()}
		}
		path[p] = true
		defer delete(path, p)
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = r.jsonTree(iter.Value(), path)
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return v.Bytes()
		}
		p := keyOf(v)
		if path[p] {
			return map[string]any{"@cycle": t.String()}
		}
		path[p] = true
		defer delete(path, p)
		out := make([]any, v.Len())
		for i := range out {
			out[i] = r.jsonTree(v.Index(i), path)
		}
		return out
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = r.jsonTree(v.Index(i), path)
		}
		return out
	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			if f := t.Field(i); f.IsExported() {
				out[f.Name] = r.jsonTree(v.Field(i), path)
			}
		}
		return out
	default:
		if v.CanInterface() {
			return v.Interface()
		}
		return nil
	}
}

func (r *Repository) genericTree(obj *GenericObject, path map[refKey]bool) any {
	out := make(map[string]any, len(obj.Values)+1)
	out["@type"] = obj.Name()
	if obj.Descriptor == nil {
		return out
	}
	for i, x := range obj.Values {
		if i < len(obj.Descriptor.Fields) {
			out[obj.Descriptor.Fields[i].Name] = r.jsonTree(reflect.ValueOf(x), path)
		}
	}
	return out
}

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

package schema

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// TagName 结构体字段标签名：`serial:"name,from=old,default=v"`，"-" 表示跳过。
const TagName = "serial"

var (
	timeType            = reflect.TypeOf(time.Time{})
	binaryMarshalerType = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()
	binaryUnmarshalType = reflect.TypeOf((*encoding.BinaryUnmarshaler)(nil)).Elem()
)

// EnumLookup 返回枚举类型各取值的名称。
type EnumLookup func(t reflect.Type) ([]string, bool)

type buildOption struct {
	enums EnumLookup
}

type BuildOption func(*buildOption)

// WithEnums 指定枚举类型的查找方式。
func WithEnums(lookup EnumLookup) BuildOption {
	return func(o *buildOption) {
		o.enums = lookup
	}
}

func newBuildOption(opts []BuildOption) *buildOption {
	o := &buildOption{}
	for _, opt := range opts {
		opt(o)
	}
	if o.enums == nil {
		o.enums = func(reflect.Type) ([]string, bool) { return nil, false }
	}
	return o
}

// TypeName 返回带包路径的规范类型名，同一类型在不同进程中结果一致。
func TypeName(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() != "" {
			return t.PkgPath() + "." + t.Name()
		}
		return t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + TypeName(t.Elem())
	case reflect.Slice:
		return "[]" + TypeName(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), TypeName(t.Elem()))
	case reflect.Map:
		return "map[" + TypeName(t.Key()) + "]" + TypeName(t.Elem())
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return "any"
		}
		return t.String()
	default:
		return t.String()
	}
}

// KindOf 返回运行时类型的语义类别。
func KindOf(t reflect.Type, opts ...BuildOption) (Kind, error) {
	return newBuildOption(opts).kindOf(t)
}

func isCustom(t reflect.Type) bool {
	pt := reflect.PointerTo(t)
	return (t.Implements(binaryMarshalerType) || pt.Implements(binaryMarshalerType)) &&
		pt.Implements(binaryUnmarshalType)
}

func (o *buildOption) kindOf(t reflect.Type) (Kind, error) {
	if t == timeType {
		return Time, nil
	}
	if _, ok := o.enums(t); ok {
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return Enum, nil
		default:
			return Invalid, merr.WrapErrUnsupportedType(TypeName(t), "enum must have an integer underlying type")
		}
	}
	if t.Kind() != reflect.Interface && t.Kind() != reflect.Pointer && isCustom(t) {
		return Custom, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return Bool, nil
	case reflect.Int8:
		return Int8, nil
	case reflect.Int16:
		return Int16, nil
	case reflect.Int32:
		return Int32, nil
	case reflect.Int64, reflect.Int:
		return Int64, nil
	case reflect.Uint8:
		return Uint8, nil
	case reflect.Uint16:
		return Uint16, nil
	case reflect.Uint32:
		return Uint32, nil
	case reflect.Uint64, reflect.Uint:
		return Uint64, nil
	case reflect.Float32:
		return Float32, nil
	case reflect.Float64:
		return Float64, nil
	case reflect.String:
		return String, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			if _, enum := o.enums(t.Elem()); !enum && !isCustom(t.Elem()) {
				return Bytes, nil
			}
		}
		return Slice, nil
	case reflect.Array:
		return Array, nil
	case reflect.Map:
		return Map, nil
	case reflect.Struct:
		return Struct, nil
	case reflect.Pointer:
		return Pointer, nil
	case reflect.Interface:
		return Interface, nil
	default:
		// chan、func、unsafe.Pointer、uintptr、complex 没有可移植的构造方式。
		return Invalid, merr.WrapErrUnsupportedType(TypeName(t), fmt.Sprintf("%s has no construction path", t.Kind()))
	}
}

// checkSupported 沿容器元素检查不可序列化的类型；结构体字段由各自的描述符检查。
func (o *buildOption) checkSupported(t reflect.Type, depth int) error {
	kind, err := o.kindOf(t)
	if err != nil {
		return err
	}
	if depth > 32 {
		return nil
	}
	switch kind {
	case Pointer, Slice, Array:
		return o.checkSupported(t.Elem(), depth+1)
	case Map:
		if err := o.checkSupported(t.Key(), depth+1); err != nil {
			return err
		}
		return o.checkSupported(t.Elem(), depth+1)
	}
	return nil
}

// Build 构建运行时类型的描述符，字段按名称字典序排列，与声明顺序无关。
func Build(t reflect.Type, opts ...BuildOption) (*TypeDescriptor, error) {
	o := newBuildOption(opts)
	if err := o.checkSupported(t, 0); err != nil {
		return nil, err
	}
	kind, _ := o.kindOf(t)
	desc := &TypeDescriptor{
		Name:   TypeName(t),
		Kind:   kind,
		goType: t,
	}

	switch kind {
	case Struct:
		fields, err := o.collectFields(t, nil, 0)
		if err != nil {
			return nil, err
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		for i := 1; i < len(fields); i++ {
			if fields[i].Name == fields[i-1].Name {
				return nil, merr.WrapErrUnsupportedType(desc.Name, "duplicate field name "+fields[i].Name)
			}
		}
		desc.Fields = fields
	case Pointer, Slice:
		desc.ElemKind, _ = o.kindOf(t.Elem())
		desc.Elem = TypeName(t.Elem())
	case Array:
		desc.ElemKind, _ = o.kindOf(t.Elem())
		desc.Elem = TypeName(t.Elem())
		desc.Len = t.Len()
	case Map:
		desc.KeyKind, _ = o.kindOf(t.Key())
		desc.Key = TypeName(t.Key())
		desc.ElemKind, _ = o.kindOf(t.Elem())
		desc.Elem = TypeName(t.Elem())
	case Enum:
		names, _ := o.enums(t)
		desc.Constants = append([]string(nil), names...)
	}
	return desc, nil
}

type fieldTag struct {
	name     string
	oldName  string
	def      string
	skip     bool
	explicit bool
}

func parseTag(tag string) fieldTag {
	if tag == "-" {
		return fieldTag{skip: true}
	}
	parts := strings.Split(tag, ",")
	ft := fieldTag{name: parts[0], explicit: parts[0] != ""}
	for _, p := range parts[1:] {
		switch {
		case strings.HasPrefix(p, "from="):
			ft.oldName = strings.TrimPrefix(p, "from=")
		case strings.HasPrefix(p, "default="):
			ft.def = strings.TrimPrefix(p, "default=")
		}
	}
	return ft
}

func (o *buildOption) collectFields(t reflect.Type, prefix []int, base uintptr) ([]FieldDescriptor, error) {
	var fields []FieldDescriptor
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := parseTag(sf.Tag.Get(TagName))
		if tag.skip {
			continue
		}
		index := append(append([]int(nil), prefix...), i)

		if sf.Anonymous && sf.IsExported() && !tag.explicit && sf.Type.Kind() == reflect.Struct {
			if kind, err := o.kindOf(sf.Type); err == nil && kind == Struct {
				embedded, err := o.collectFields(sf.Type, index, base+sf.Offset)
				if err != nil {
					return nil, err
				}
				fields = append(fields, embedded...)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}

		if err := o.checkSupported(sf.Type, 0); err != nil {
			return nil, merr.WrapErrUnsupportedType(TypeName(t), fmt.Sprintf("field %s: %s", sf.Name, err.Error()))
		}
		kind, _ := o.kindOf(sf.Type)
		name := sf.Name
		if tag.name != "" {
			name = tag.name
		}
		fields = append(fields, FieldDescriptor{
			Name:     name,
			OldName:  tag.oldName,
			Kind:     kind,
			Type:     TypeName(sf.Type),
			Optional: isOptional(kind),
			Default:  tag.def,
			index:    index,
			offset:   base + sf.Offset,
			goType:   sf.Type,
		})
	}
	return fields, nil
}

func isOptional(kind Kind) bool {
	switch kind {
	case Pointer, Slice, Map, Interface, Bytes:
		return true
	default:
		return false
	}
}

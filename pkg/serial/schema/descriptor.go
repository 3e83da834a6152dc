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
	"fmt"
	"reflect"
	"strings"
)

// UID 类型标识，由描述符的规范编码计算得到。
type UID uint64

// ReservedUIDs 之下的标识保留给内置序列化器。
const ReservedUIDs UID = 64

func (u UID) String() string {
	return fmt.Sprintf("%#016x", uint64(u))
}

// Reserved 判断是否为内置序列化器使用的标识。
func (u UID) Reserved() bool {
	return u < ReservedUIDs
}

// FieldDescriptor 描述一个可序列化字段。
type FieldDescriptor struct {
	Name string
	// OldName 来自 `serial:"name,from=old"`，只参与字段匹配，不参与指纹计算。
	OldName string
	Kind    Kind
	// Type 声明类型的规范名称，带包路径。
	Type string
	// Optional 可以为 null 的字段（指针、切片、映射、接口、字节序列）。
	Optional bool
	// Default 来自 `serial:",default=v"`，字段不在流中时使用。
	Default string

	index  []int
	offset uintptr
	goType reflect.Type
}

// Index 字段在运行时结构体中的索引路径，嵌入结构体展开后长度大于 1。
func (f *FieldDescriptor) Index() []int {
	return f.index
}

// Offset 字段相对结构体起始地址的偏移。
func (f *FieldDescriptor) Offset() uintptr {
	return f.offset
}

// GoType 从流中读取的描述符返回 nil。
func (f *FieldDescriptor) GoType() reflect.Type {
	return f.goType
}

// TypeDescriptor 类型的结构描述，构建完成后不再修改。
type TypeDescriptor struct {
	Name   string
	Kind   Kind
	Fields []FieldDescriptor

	// 集合类型的元素与键；指针类型只使用 Elem。
	ElemKind Kind
	Elem     string
	KeyKind  Kind
	Key      string
	Len      int

	// Constants 枚举取值对应的名称，下标即取值。
	Constants []string

	goType reflect.Type
}

// GoType 从流中读取的描述符返回 nil。
func (d *TypeDescriptor) GoType() reflect.Type {
	return d.goType
}

// Field 按名称查找字段，返回下标；不存在时返回 -1。
func (d *TypeDescriptor) Field(name string) (*FieldDescriptor, int) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i], i
		}
	}
	return nil, -1
}

// StructurallyEqual 比较名称、类别与有序字段列表（名称、类别、类型）。
func (d *TypeDescriptor) StructurallyEqual(o *TypeDescriptor) bool {
	if d == o {
		return true
	}
	if d == nil || o == nil {
		return false
	}
	if d.Name != o.Name || d.Kind != o.Kind || len(d.Fields) != len(o.Fields) {
		return false
	}
	if d.ElemKind != o.ElemKind || d.Elem != o.Elem || d.KeyKind != o.KeyKind || d.Key != o.Key || d.Len != o.Len {
		return false
	}
	for i := range d.Fields {
		a, b := &d.Fields[i], &o.Fields[i]
		if a.Name != b.Name || a.Kind != b.Kind || a.Type != b.Type {
			return false
		}
	}
	if len(d.Constants) != len(o.Constants) {
		return false
	}
	for i := range d.Constants {
		if d.Constants[i] != o.Constants[i] {
			return false
		}
	}
	return true
}

func (d *TypeDescriptor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", d.Kind, d.Name)
	switch d.Kind {
	case Struct:
		sb.WriteString(" {\n")
		for _, f := range d.Fields {
			fmt.Fprintf(&sb, "\t%s %s", f.Name, f.Type)
			if f.OldName != "" {
				fmt.Fprintf(&sb, " from=%s", f.OldName)
			}
			if f.Default != "" {
				fmt.Fprintf(&sb, " default=%s", f.Default)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("}")
	case Map:
		fmt.Fprintf(&sb, " key=%s(%s) elem=%s(%s)", d.Key, d.KeyKind, d.Elem, d.ElemKind)
	case Slice, Pointer:
		fmt.Fprintf(&sb, " elem=%s(%s)", d.Elem, d.ElemKind)
	case Array:
		fmt.Fprintf(&sb, " len=%d elem=%s(%s)", d.Len, d.Elem, d.ElemKind)
	case Enum:
		fmt.Fprintf(&sb, " %v", d.Constants)
	}
	return sb.String()
}

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

import "fmt"

// Kind 语义类别，决定值在流中的编码方式。数值会写入描述符，不能调整已有取值。
type Kind uint8

const (
	Invalid Kind = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	String
	Bytes
	Time
	Enum
	Custom
	Struct
	Pointer
	Slice
	Array
	Map
	Interface

	maxKind
)

var kindNames = [...]string{
	Invalid:   "invalid",
	Bool:      "bool",
	Int8:      "int8",
	Int16:     "int16",
	Int32:     "int32",
	Int64:     "int64",
	Uint8:     "uint8",
	Uint16:    "uint16",
	Uint32:    "uint32",
	Uint64:    "uint64",
	Float32:   "float32",
	Float64:   "float64",
	String:    "string",
	Bytes:     "bytes",
	Time:      "time",
	Enum:      "enum",
	Custom:    "custom",
	Struct:    "struct",
	Pointer:   "pointer",
	Slice:     "slice",
	Array:     "array",
	Map:       "map",
	Interface: "interface",
}

func (k Kind) String() string {
	if k < maxKind {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid 判断取值是否为已知类别，读取描述符时用于校验。
func (k Kind) Valid() bool {
	return k > Invalid && k < maxKind
}

// Primitive 基础类别直接写出原始值，其余类别占用一个对象槽位。
func (k Kind) Primitive() bool {
	return k >= Bool && k <= Custom
}

func (k Kind) Signed() bool {
	return k >= Int8 && k <= Int64
}

func (k Kind) Unsigned() bool {
	return k >= Uint8 && k <= Uint64
}

func (k Kind) Float() bool {
	return k == Float32 || k == Float64
}

// Bits 返回数值类别的位宽，非数值类别返回 0。
func (k Kind) Bits() int {
	switch k {
	case Int8, Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32, Float32:
		return 32
	case Int64, Uint64, Float64:
		return 64
	default:
		return 0
	}
}

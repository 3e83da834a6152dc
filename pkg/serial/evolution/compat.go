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

package evolution

import (
	"strings"

	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
)

// Compatible 判断存储类别能否不经转换器写入本地类别。
// 数值只允许拓宽；对象类别在结构上相容即可，元素在读取时逐个转换。
func Compatible(stored, local schema.Kind) bool {
	if stored == local || local == schema.Interface {
		return true
	}
	switch {
	case stored.Signed():
		if local.Signed() {
			return local.Bits() >= stored.Bits()
		}
		return local == schema.Float64 && stored.Bits() <= 32
	case stored.Unsigned():
		if local.Unsigned() {
			return local.Bits() >= stored.Bits()
		}
		if local.Signed() {
			return local.Bits() > stored.Bits()
		}
		return local == schema.Float64 && stored.Bits() <= 32
	case stored == schema.Float32:
		return local == schema.Float64
	}
	switch stored {
	case schema.Enum:
		return local == schema.String
	case schema.String:
		return local == schema.Enum
	case schema.Custom:
		return local == schema.Bytes
	case schema.Bytes:
		return local == schema.Custom
	case schema.Struct:
		return local == schema.Pointer
	case schema.Pointer:
		return local == schema.Struct
	case schema.Slice:
		return local == schema.Array
	case schema.Array:
		return local == schema.Slice
	}
	return false
}

// CompatibleType 在类别相容的基础上逐层比较集合的元素与键，
// 元素拓宽可以接受，收窄必须登记转换器。命名的集合类型无法从名称展开，交给读取时的描述符检查。
func CompatibleType(storedKind schema.Kind, storedType string, localKind schema.Kind, localType string) bool {
	if storedType == localType {
		return true
	}
	if !Compatible(storedKind, localKind) {
		return false
	}
	if localKind == schema.Interface {
		return true
	}
	sk, se, sok := splitCollection(storedType)
	lk, le, lok := splitCollection(localType)
	if !sok || !lok {
		return true
	}
	if (sk == "") != (lk == "") {
		return false
	}
	if sk != "" && !compatibleName(sk, lk) {
		return false
	}
	return compatibleName(se, le)
}

// compatibleElem 存储端为接口的元素逐个按实际值赋值，不在这里拒绝。
func compatibleElem(storedKind schema.Kind, storedType string, localKind schema.Kind, localType string) bool {
	if storedKind == schema.Interface {
		return true
	}
	return CompatibleType(storedKind, storedType, localKind, localType)
}

// CompatibleDescriptor 比较两个描述符，集合类型按 ElemKind 与 KeyKind 逐层检查。
func CompatibleDescriptor(stored, local *schema.TypeDescriptor) bool {
	if !Compatible(stored.Kind, local.Kind) {
		return false
	}
	switch local.Kind {
	case schema.Slice, schema.Array:
		if stored.Kind != schema.Slice && stored.Kind != schema.Array {
			return true
		}
		return compatibleElem(stored.ElemKind, stored.Elem, local.ElemKind, local.Elem)
	case schema.Map:
		return compatibleElem(stored.KeyKind, stored.Key, local.KeyKind, local.Key) &&
			compatibleElem(stored.ElemKind, stored.Elem, local.ElemKind, local.Elem)
	}
	return true
}

func compatibleName(stored, local string) bool {
	sk, lk := kindOfName(stored), kindOfName(local)
	if sk == schema.Invalid || lk == schema.Invalid {
		return true
	}
	return compatibleElem(sk, stored, lk, local)
}

// splitCollection 拆出切片、数组与映射类型名的键和元素，映射以外的 key 为空。
func splitCollection(name string) (key, elem string, ok bool) {
	switch {
	case strings.HasPrefix(name, "[]"):
		return "", name[2:], true
	case strings.HasPrefix(name, "["):
		if i := strings.IndexByte(name, ']'); i > 0 {
			return "", name[i+1:], true
		}
	case strings.HasPrefix(name, "map["):
		depth := 0
		for i := 3; i < len(name); i++ {
			switch name[i] {
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					return name[4:i], name[i+1:], true
				}
			}
		}
	}
	return "", "", false
}

var primitiveNames = map[string]schema.Kind{
	"bool":      schema.Bool,
	"int8":      schema.Int8,
	"int16":     schema.Int16,
	"int32":     schema.Int32,
	"int64":     schema.Int64,
	"int":       schema.Int64,
	"uint8":     schema.Uint8,
	"uint16":    schema.Uint16,
	"uint32":    schema.Uint32,
	"uint64":    schema.Uint64,
	"uint":      schema.Uint64,
	"float32":   schema.Float32,
	"float64":   schema.Float64,
	"string":    schema.String,
	"time.Time": schema.Time,
	"any":       schema.Interface,
	"[]uint8":   schema.Bytes,
}

// kindOfName 只识别内置类型和未命名的复合类型，其余命名类型返回 Invalid。
func kindOfName(name string) schema.Kind {
	if k, ok := primitiveNames[name]; ok {
		return k
	}
	switch {
	case strings.HasPrefix(name, "[]"):
		return schema.Slice
	case strings.HasPrefix(name, "["):
		return schema.Array
	case strings.HasPrefix(name, "map["):
		return schema.Map
	case strings.HasPrefix(name, "*"):
		return schema.Pointer
	}
	return schema.Invalid
}

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

// Package wire 实现与对象结构无关的基础编码：变长整数、定长浮点、
// 带长度前缀的字符串与字节序列以及对象槽位标记。
//
// 整数使用 LEB128 小端续位编码，有符号整数先做 zig-zag 变换；
// 浮点数为 IEEE-754 小端定长；字符串与字节序列的长度前缀为 len+1，0 表示 null。
package wire

const (
	// TagNull 空引用。
	TagNull byte = 0x00
	// TagRef 回指本次调用中已经出现过的对象，后跟 uvarint 引用序号。
	TagRef byte = 0x01
	// TagValue 内联对象，后跟 uvarint 类型标识与对象内容。
	TagValue byte = 0x02
	// TagPointer 与 TagValue 相同，但读取端应得到指向该对象的指针。
	TagPointer byte = 0x03

	// FlagDescriptor 与 TagValue/TagPointer 按位或，表示类型标识之后紧跟类型描述符。
	FlagDescriptor byte = 0x80

	tagMask byte = 0x7f
)

// DefaultMaxLength 单个字符串、字节序列或集合允许的最大长度。
const DefaultMaxLength = 64 << 20

// SplitTag 拆分槽位标记，返回基础标记以及是否携带描述符。
func SplitTag(tag byte) (base byte, withDescriptor bool) {
	return tag & tagMask, tag&FlagDescriptor != 0
}

// TagName 用于日志和错误信息。
func TagName(tag byte) string {
	base, _ := SplitTag(tag)
	switch base {
	case TagNull:
		return "null"
	case TagRef:
		return "ref"
	case TagValue:
		return "value"
	case TagPointer:
		return "pointer"
	default:
		return "unknown"
	}
}

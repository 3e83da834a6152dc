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
	"github.com/spaolacci/murmur3"

	"github.com/lk2023060901/garden-serial/pkg/serial/wire"
)

// Fingerprint 对描述符的规范编码计算 64 位 murmur3 哈希。
// 参与计算的只有类型名、类别、字段名/类别/类型以及集合和枚举信息，
// OldName、Default、Optional 不影响结果。
func Fingerprint(d *TypeDescriptor) UID {
	w := wire.NewBufferWriter()
	defer w.Release()

	w.WriteString(d.Name)
	w.WriteTag(byte(d.Kind))
	w.WriteUvarint(uint64(len(d.Fields)))
	for i := range d.Fields {
		f := &d.Fields[i]
		w.WriteString(f.Name)
		w.WriteTag(byte(f.Kind))
		w.WriteString(f.Type)
	}
	w.WriteTag(byte(d.ElemKind))
	w.WriteString(d.Elem)
	w.WriteTag(byte(d.KeyKind))
	w.WriteString(d.Key)
	w.WriteUvarint(uint64(d.Len))
	w.WriteUvarint(uint64(len(d.Constants)))
	for _, c := range d.Constants {
		w.WriteString(c)
	}

	uid := UID(murmur3.Sum64(w.Bytes()))
	if uid.Reserved() {
		uid += ReservedUIDs
	}
	return uid
}

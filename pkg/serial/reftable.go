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

	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// refKey 切片的 n 为长度，同一数组上的不同切片视为不同对象。
type refKey struct {
	ptr uintptr
	n   int
	typ reflect.Type
}

func keyOf(v reflect.Value) refKey {
	k := refKey{ptr: v.Pointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		k.n = v.Len()
	}
	return k
}

// writeRefs 写入端的引用表，只对指针、映射与切片记录身份，
// 但每个对象槽位都占用一个序号，保证两端编号一致。
type writeRefs struct {
	index map[refKey]int
	next  int
}

func newWriteRefs() *writeRefs {
	return &writeRefs{index: make(map[refKey]int)}
}

func (r *writeRefs) reset() {
	clear(r.index)
	r.next = 0
}

func (r *writeRefs) lookup(v reflect.Value) (int, bool) {
	idx, ok := r.index[keyOf(v)]
	return idx, ok
}

func (r *writeRefs) track(v reflect.Value) {
	r.index[keyOf(v)] = r.next
	r.next++
}

func (r *writeRefs) skip() {
	r.next++
}

// readRefs 读取端的引用表，序号在读取对象内容之前预留。
type readRefs struct {
	objs []reflect.Value
}

func (r *readRefs) reset() {
	clear(r.objs)
	r.objs = r.objs[:0]
}

func (r *readRefs) reserve() int {
	r.objs = append(r.objs, reflect.Value{})
	return len(r.objs) - 1
}

func (r *readRefs) set(idx int, v reflect.Value) {
	r.objs[idx] = v
}

func (r *readRefs) get(idx uint64) (reflect.Value, error) {
	if idx >= uint64(len(r.objs)) {
		return reflect.Value{}, merr.WrapErrStreamCorrupted(fmt.Sprintf("reference %d out of range, %d objects read", idx, len(r.objs)))
	}
	v := r.objs[idx]
	if !v.IsValid() {
		return reflect.Value{}, merr.WrapErrStreamCorrupted(fmt.Sprintf("reference %d is not resolved yet", idx))
	}
	return v, nil
}

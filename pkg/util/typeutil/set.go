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

package typeutil

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/exp/constraints"
)

// Set 可以像 map 一样用 make(Set[T]) 创建。
type Set[T comparable] map[T]struct{}

func NewSet[T comparable](elements ...T) Set[T] {
	set := make(Set[T])
	set.Insert(elements...)
	return set
}

// Insert 将元素插入集合，已存在的元素被忽略。
func (set Set[T]) Insert(elements ...T) {
	for i := range elements {
		set[elements[i]] = struct{}{}
	}
}

// Contain 判断一个或多个元素是否都存在于集合中。
func (set Set[T]) Contain(elements ...T) bool {
	for i := range elements {
		_, ok := set[elements[i]]
		if !ok {
			return false
		}
	}
	return true
}

// Remove 从集合中移除元素。
// 如果集合为 nil 或元素不存在，则忽略。
func (set Set[T]) Remove(elements ...T) {
	for i := range elements {
		delete(set, elements[i])
	}
}

func (set Set[T]) Clear() {
	clear(set)
}

// Collect 返回集合中所有元素的切片，顺序不固定。
func (set Set[T]) Collect() []T {
	elements := make([]T, 0, len(set))
	for elem := range set {
		elements = append(elements, elem)
	}
	return elements
}

func (set Set[T]) Len() int {
	return len(set)
}

// Clone 返回一个拥有相同元素的新集合。
func (set Set[T]) Clone() Set[T] {
	ret := make(Set[T], set.Len())
	for elem := range set {
		ret.Insert(elem)
	}
	return ret
}

// Sorted 按升序返回集合元素，用于需要稳定输出的场景（快照、调试输出）。
func Sorted[T constraints.Ordered](set Set[T]) []T {
	elements := set.Collect()
	sort.Slice(elements, func(i, j int) bool { return elements[i] < elements[j] })
	return elements
}

// ConcurrentSet 是并发安全的集合。
type ConcurrentSet[T comparable] struct {
	inner *xsync.MapOf[T, struct{}]
}

func NewConcurrentSet[T comparable]() *ConcurrentSet[T] {
	return &ConcurrentSet[T]{inner: xsync.NewMapOf[T, struct{}]()}
}

// Insert 插入元素，返回 false 表示元素已存在。
func (set *ConcurrentSet[T]) Insert(element T) bool {
	_, exist := set.inner.LoadOrStore(element, struct{}{})
	return !exist
}

func (set *ConcurrentSet[T]) Contain(elements ...T) bool {
	for i := range elements {
		if _, ok := set.inner.Load(elements[i]); !ok {
			return false
		}
	}
	return true
}

// TryRemove 移除单个元素，元素不存在时返回 false。
func (set *ConcurrentSet[T]) TryRemove(element T) bool {
	_, exist := set.inner.LoadAndDelete(element)
	return exist
}

func (set *ConcurrentSet[T]) Len() int {
	return set.inner.Size()
}

func (set *ConcurrentSet[T]) Range(f func(element T) bool) {
	set.inner.Range(func(key T, _ struct{}) bool {
		return f(key)
	})
}

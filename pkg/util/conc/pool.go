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

package conc

import (
	"fmt"

	ants "github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/garden-serial/pkg/util/hardware"
)

// Pool 是对 ants 协程池的泛型封装，提交的任务以 Future 形式返回结果。
type Pool[T any] struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool 创建容量为 cap 的协程池。
func NewPool[T any](cap int, opts ...PoolOption) *Pool[T] {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		panic(err)
	}

	return &Pool[T]{
		inner: pool,
		opt:   opt,
	}
}

// NewDefaultPool 创建与 CPU 数量相同容量的协程池。
func NewDefaultPool[T any](opts ...PoolOption) *Pool[T] {
	return NewPool[T](hardware.GetCPUNum(), opts...)
}

// Submit 提交任务；协程池拒绝任务时，错误通过 Future 返回。
func (pool *Pool[T]) Submit(method func() (T, error)) *Future[T] {
	future := newFuture[T]()
	err := pool.inner.Submit(func() {
		defer close(future.ch)
		defer func() {
			if x := recover(); x != nil {
				future.err = fmt.Errorf("panicked with error: %v", x)
				panic(x)
			}
		}()
		if pool.opt.preHandler != nil {
			pool.opt.preHandler()
		}
		res, err := method()
		if err != nil {
			future.err = err
		} else {
			future.value = res
		}
	})
	if err != nil {
		future.err = err
		close(future.ch)
	}

	return future
}

func (pool *Pool[T]) Cap() int {
	return pool.inner.Cap()
}

func (pool *Pool[T]) Running() int {
	return pool.inner.Running()
}

func (pool *Pool[T]) Free() int {
	return pool.inner.Free()
}

func (pool *Pool[T]) Release() {
	pool.inner.Release()
}

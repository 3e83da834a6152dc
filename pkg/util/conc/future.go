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

import "github.com/lk2023060901/garden-serial/pkg/util/merr"

type future interface {
	wait()
	OK() bool
	Err() error
}

// Future 表示一个异步任务的结果。
type Future[T any] struct {
	ch    chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{
		ch: make(chan struct{}),
	}
}

func (future *Future[T]) wait() {
	<-future.ch
}

// Await 阻塞直到任务完成，返回结果与错误。
func (future *Future[T]) Await() (T, error) {
	future.wait()
	return future.value, future.err
}

func (future *Future[T]) Value() T {
	future.wait()
	return future.value
}

func (future *Future[T]) OK() bool {
	future.wait()
	return future.err == nil
}

func (future *Future[T]) Err() error {
	future.wait()
	return future.err
}

// Inner 返回只在任务完成时关闭的通道。
func (future *Future[T]) Inner() <-chan struct{} {
	return future.ch
}

// AwaitAll 等待所有任务完成，返回合并后的错误。
func AwaitAll[T future](futures ...T) error {
	errs := make([]error, 0)
	for i := range futures {
		if !futures[i].OK() {
			errs = append(errs, futures[i].Err())
		}
	}
	return merr.Combine(errs...)
}

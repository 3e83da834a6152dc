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
	"time"

	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/pkg/log"
)

// poolOption 协程池配置。池总是阻塞提交，调用方依靠 Future 获取结果。
type poolOption struct {
	preAlloc       bool
	expiryDuration time.Duration
	// 短生命周期的池不需要后台清理协程
	disablePurge bool
	concealPanic bool
	panicHandler func(any)
	preHandler   func()
}

// PoolOption 用于配置协程池行为的选项函数。
type PoolOption func(opt *poolOption)

func defaultPoolOption() *poolOption {
	return &poolOption{}
}

// onPanic 任务 panic 时的处理：先交给自定义处理函数，否则记录日志后按 concealPanic 决定是否继续抛出。
// 无论哪种方式，对应 Future 的错误都已在 Submit 中设置。
func (opt *poolOption) onPanic(v any) {
	if opt.panicHandler != nil {
		opt.panicHandler(v)
		return
	}
	log.Error("conc pool task panicked", zap.Any("panic", v))
	if !opt.concealPanic {
		panic(v)
	}
}

func (opt *poolOption) antsOptions() []ants.Option {
	result := []ants.Option{
		ants.WithPreAlloc(opt.preAlloc),
		ants.WithDisablePurge(opt.disablePurge),
		ants.WithPanicHandler(opt.onPanic),
	}
	if opt.expiryDuration > 0 {
		result = append(result, ants.WithExpiryDuration(opt.expiryDuration))
	}
	return result
}

func WithPreAlloc(v bool) PoolOption {
	return func(opt *poolOption) {
		opt.preAlloc = v
	}
}

// WithDisablePurge 关闭空闲 worker 的定期清理，用于随任务一起释放的临时池。
func WithDisablePurge(v bool) PoolOption {
	return func(opt *poolOption) {
		opt.disablePurge = v
	}
}

func WithExpiryDuration(d time.Duration) PoolOption {
	return func(opt *poolOption) {
		opt.expiryDuration = d
	}
}

func WithConcealPanic(v bool) PoolOption {
	return func(opt *poolOption) {
		opt.concealPanic = v
	}
}

// WithPanicHandler 替换默认的 panic 处理，设置后 panic 不再向上抛出。
func WithPanicHandler(fn func(any)) PoolOption {
	return func(opt *poolOption) {
		opt.panicHandler = fn
	}
}

func WithPreHandler(fn func()) PoolOption {
	return func(opt *poolOption) {
		opt.preHandler = fn
	}
}

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
	"github.com/lk2023060901/garden-serial/pkg/log"
)

// Option 创建 Repository 时的可选配置。
type Option func(r *Repository)

func WithConfig(cfg Config) Option {
	return func(r *Repository) {
		r.cfg = cfg
	}
}

// WithStrategy 只修改生成方式，其余配置保持不变。
func WithStrategy(s Strategy) Option {
	return func(r *Repository) {
		r.cfg.Strategy = s
	}
}

func WithVerify(v bool) Option {
	return func(r *Repository) {
		r.cfg.Verify = v
	}
}

// WithGenerator 替换结构体序列化器的生成器，优先于 Config.Strategy。
func WithGenerator(g Generator) Option {
	return func(r *Repository) {
		r.generator = g
	}
}

func WithLogger(logger *log.MLogger) Option {
	return func(r *Repository) {
		r.SetLogger(logger)
	}
}

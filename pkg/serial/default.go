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
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/serial/evolution"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
)

var (
	defaultOnce sync.Once
	defaultRepo *Repository
)

// Default 返回进程级的仓库，首次调用时按 DefaultConfig 创建。
func Default() *Repository {
	defaultOnce.Do(func() {
		repo, err := NewRepository()
		if err != nil {
			log.Error("failed to create default serial repository", zap.Error(err))
			panic(err)
		}
		defaultRepo = repo
	})
	return defaultRepo
}

func Marshal(v any) ([]byte, error) {
	return Default().Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return Default().Unmarshal(data, v)
}

func Decode(data []byte) (any, error) {
	return Default().Decode(data)
}

func Size(v any) (int, error) {
	return Default().Size(v)
}

func ToJSON(v any) ([]byte, error) {
	return Default().ToJSON(v)
}

func Register(values ...any) error {
	return Default().Register(values...)
}

func RegisterAlias(t reflect.Type, uid schema.UID) error {
	return Default().RegisterAlias(t, uid)
}

func RegisterEnum(t reflect.Type, names []string) error {
	return Default().RegisterEnum(t, names)
}

func RegisterConverter(storedType, localType string, fn evolution.ConverterFunc) {
	Default().RegisterConverter(storedType, localType, fn)
}

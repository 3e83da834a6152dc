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

// Package serial 实现二进制对象序列化：按类型生成专用序列化器，
// 保留共享引用与循环，并在读取时协调写入端与本地结构的差异。
package serial

import (
	"reflect"

	"github.com/lk2023060901/garden-serial/pkg/serial/evolution"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
)

// Serializer 绑定到一个类型描述符的编解码实现，创建后无状态，可以并发使用。
type Serializer interface {
	UID() schema.UID
	Descriptor() *schema.TypeDescriptor
	// Type 读取时构造的运行时类型，占位类型返回对应的泛型表示。
	Type() reflect.Type
	Strategy() Strategy
	// Write 写出 v 的内容，不包括槽位标记与类型标识。
	Write(e *Encoder, v reflect.Value) error
	// Read 将内容读入可设置的 v，plan 为 nil 表示流中结构与本地一致。
	Read(d *Decoder, v reflect.Value, plan *evolution.Plan) error
}

// Generator 为结构体描述符生成序列化器。
type Generator interface {
	Strategy() Strategy
	Generate(repo *Repository, uid schema.UID, desc *schema.TypeDescriptor) (Serializer, error)
}

type serializerBase struct {
	uid      schema.UID
	desc     *schema.TypeDescriptor
	typ      reflect.Type
	strategy Strategy
}

func (b *serializerBase) UID() schema.UID {
	return b.uid
}

func (b *serializerBase) Descriptor() *schema.TypeDescriptor {
	return b.desc
}

func (b *serializerBase) Type() reflect.Type {
	return b.typ
}

func (b *serializerBase) Strategy() Strategy {
	return b.strategy
}

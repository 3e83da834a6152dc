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

// Package evolution 计算流中存储的结构与本地运行时结构之间的字段映射。
package evolution

import (
	"fmt"
	"strings"

	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
)

// Action 读取一个存储字段时采取的动作。
type Action uint8

const (
	// ActionCopy 读取并写入本地字段，必要时做拓宽转换。
	ActionCopy Action = iota + 1
	// ActionConvert 读取后交给注册的转换器。
	ActionConvert
	// ActionDiscard 本地已删除的字段，读取后丢弃。
	ActionDiscard
	// ActionDefault 流中没有的本地字段，不消费数据，使用声明的默认值。
	ActionDefault
)

func (a Action) String() string {
	switch a {
	case ActionCopy:
		return "copy"
	case ActionConvert:
		return "convert"
	case ActionDiscard:
		return "discard"
	case ActionDefault:
		return "default"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Match 字段是如何匹配上的。
type Match uint8

const (
	MatchNone Match = iota
	MatchExact
	// MatchRenamed 通过本地 from= 或存储端 OldName 匹配。
	MatchRenamed
	// MatchMigrated 同名不同类型，按拓宽规则复制。
	MatchMigrated
	MatchConverted
)

// Step 对应存储描述符中的一个字段，按写入端顺序排列。
type Step struct {
	Stored  schema.FieldDescriptor
	Action  Action
	Match   Match
	Target  int
	Convert ConverterFunc
}

// DefaultStep 本地字段在流中缺失时的默认值。
type DefaultStep struct {
	Target  int
	Default string
}

// Plan 存储结构到本地结构的读取计划，计算后只读。
type Plan struct {
	StoredUID schema.UID
	Stored    *schema.TypeDescriptor
	Local     *schema.TypeDescriptor
	Steps     []Step
	Defaults  []DefaultStep
	// Identity 两端结构一致，读取时可以按字段顺序直接读。
	Identity bool
}

// IdentityPlan 为结构一致的类型构造计划。
func IdentityPlan(uid schema.UID, desc *schema.TypeDescriptor) *Plan {
	p := &Plan{
		StoredUID: uid,
		Stored:    desc,
		Local:     desc,
		Steps:     make([]Step, len(desc.Fields)),
		Identity:  true,
	}
	for i := range desc.Fields {
		p.Steps[i] = Step{Stored: desc.Fields[i], Action: ActionCopy, Match: MatchExact, Target: i}
	}
	return p
}

// Summary 用于日志与调试输出。
func (p *Plan) Summary() string {
	if p.Identity {
		return "identity"
	}
	var parts []string
	for _, s := range p.Steps {
		switch s.Action {
		case ActionDiscard:
			parts = append(parts, fmt.Sprintf("-%s", s.Stored.Name))
		case ActionConvert:
			parts = append(parts, fmt.Sprintf("%s=>%s", s.Stored.Name, p.Local.Fields[s.Target].Name))
		default:
			if local := p.Local.Fields[s.Target].Name; local != s.Stored.Name {
				parts = append(parts, fmt.Sprintf("%s->%s", s.Stored.Name, local))
			}
		}
	}
	for _, d := range p.Defaults {
		parts = append(parts, fmt.Sprintf("+%s", p.Local.Fields[d.Target].Name))
	}
	return strings.Join(parts, " ")
}

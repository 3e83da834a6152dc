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

package evolution

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/metrics"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// DefaultPlanCacheSize 缓存的读取计划数量上限。
const DefaultPlanCacheSize = 1024

// ConverterFunc 将存储字段的泛型值转换为本地字段可接受的值。
type ConverterFunc func(old any) (any, error)

type converterKey struct {
	stored string
	local  string
}

// Converters 按（存储类型名，本地类型名）登记的转换器。
type Converters struct {
	m *xsync.MapOf[converterKey, ConverterFunc]
}

func NewConverters() *Converters {
	return &Converters{m: xsync.NewMapOf[converterKey, ConverterFunc]()}
}

func (c *Converters) Register(storedType, localType string, fn ConverterFunc) {
	c.m.Store(converterKey{storedType, localType}, fn)
}

func (c *Converters) Lookup(storedType, localType string) (ConverterFunc, bool) {
	return c.m.Load(converterKey{storedType, localType})
}

type planKey struct {
	uid   schema.UID
	local *schema.TypeDescriptor
}

// Resolver 计算并缓存读取计划。
type Resolver struct {
	converters *Converters
	cache      *lru.Cache
	logger     *log.MLogger
}

// NewResolver cacheSize 小于等于 0 时使用 DefaultPlanCacheSize。
func NewResolver(cacheSize int, converters *Converters) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultPlanCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidRange(1, 1<<20, cacheSize, err.Error())
	}
	if converters == nil {
		converters = NewConverters()
	}
	return &Resolver{
		converters: converters,
		cache:      cache,
		logger:     log.With(log.FieldComponent("evolution")).WithRateGroup("serial.evolution", 1, 60),
	}, nil
}

// RegisterConverter 登记转换器并清空计划缓存，已缓存的计划可能因此改变。
func (r *Resolver) RegisterConverter(storedType, localType string, fn ConverterFunc) {
	r.converters.Register(storedType, localType, fn)
	r.cache.Purge()
}

func (r *Resolver) Converters() *Converters {
	return r.converters
}

// Plan 返回 stored 到 local 的读取计划，结果按（存储标识，本地描述符）缓存。
// 本地描述符在进程内不会变化，直接用指针作为键。
func (r *Resolver) Plan(uid schema.UID, stored, local *schema.TypeDescriptor) (*Plan, error) {
	key := planKey{uid: uid, local: local}
	if v, ok := r.cache.Get(key); ok {
		return v.(*Plan), nil
	}
	plan, err := r.compute(uid, stored, local)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, plan)
	return plan, nil
}

func (r *Resolver) compute(uid schema.UID, stored, local *schema.TypeDescriptor) (*Plan, error) {
	if stored.StructurallyEqual(local) {
		p := IdentityPlan(uid, local)
		p.Stored = stored
		return p, nil
	}

	plan := &Plan{
		StoredUID: uid,
		Stored:    stored,
		Local:     local,
		Steps:     make([]Step, len(stored.Fields)),
	}
	used := make([]bool, len(local.Fields))
	for i := range stored.Fields {
		plan.Steps[i] = Step{Stored: stored.Fields[i], Target: -1}
	}

	passes := []func(s, l *schema.FieldDescriptor) bool{
		// 同名同类型
		func(s, l *schema.FieldDescriptor) bool { return s.Name == l.Name && s.Type == l.Type },
		// 本地字段声明了 from=
		func(s, l *schema.FieldDescriptor) bool { return l.OldName != "" && l.OldName == s.Name },
		// 写入端记录了旧名称
		func(s, l *schema.FieldDescriptor) bool { return s.OldName != "" && s.OldName == l.Name },
		// 仅名称相同
		func(s, l *schema.FieldDescriptor) bool { return s.Name == l.Name },
	}
	for _, match := range passes {
		for i := range plan.Steps {
			step := &plan.Steps[i]
			if step.Target >= 0 {
				continue
			}
			for j := range local.Fields {
				if used[j] || !match(&step.Stored, &local.Fields[j]) {
					continue
				}
				if err := r.bind(stored, step, &local.Fields[j], j); err != nil {
					return nil, err
				}
				used[j] = true
				break
			}
		}
	}

	stats := map[string]int{}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		switch {
		case step.Target < 0:
			step.Action = ActionDiscard
			stats[metrics.MismatchMissedLocal]++
		case step.Match == MatchRenamed:
			stats[metrics.MismatchRenamed]++
		case step.Match == MatchMigrated:
			stats[metrics.MismatchMigrated]++
		case step.Match == MatchConverted:
			stats[metrics.MismatchConverted]++
		}
	}
	for j := range local.Fields {
		if !used[j] {
			plan.Defaults = append(plan.Defaults, DefaultStep{Target: j, Default: local.Fields[j].Default})
			stats[metrics.MismatchMissedStream]++
		}
	}
	for reason, n := range stats {
		metrics.SerialFieldMismatches.WithLabelValues(reason).Add(float64(n))
	}
	r.logger.RatedWarn(1, "stored type differs from local type",
		log.FieldUID(uint64(uid)),
		log.FieldType(local.Name),
		zap.String("plan", plan.Summary()))
	return plan, nil
}

func (r *Resolver) bind(stored *schema.TypeDescriptor, step *Step, l *schema.FieldDescriptor, target int) error {
	s := &step.Stored
	step.Target = target
	step.Action = ActionCopy
	if s.Type == l.Type {
		step.Match = MatchExact
		if s.Name != l.Name {
			step.Match = MatchRenamed
		}
		return nil
	}
	if fn, ok := r.converters.Lookup(s.Type, l.Type); ok {
		step.Action = ActionConvert
		step.Match = MatchConverted
		step.Convert = fn
		return nil
	}
	if CompatibleType(s.Kind, s.Type, l.Kind, l.Type) {
		step.Match = MatchMigrated
		if s.Name != l.Name {
			step.Match = MatchRenamed
		}
		return nil
	}
	return merr.WrapErrEvolution(stored.Name, s.Name, s.Type, l.Type)
}

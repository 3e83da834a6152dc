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
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/metrics"
	"github.com/lk2023060901/garden-serial/pkg/serial/evolution"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/util/conc"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

type bindingKind uint8

const (
	// bindLocal 类型标识由本地类型计算得到。
	bindLocal bindingKind = iota
	// bindAlias 流中的类型标识映射到本地的同名或显式注册的类型。
	bindAlias
	// bindPlaceholder 本地没有对应类型，按泛型表示读取。
	bindPlaceholder
)

func (k bindingKind) String() string {
	switch k {
	case bindLocal:
		return "local"
	case bindAlias:
		return "alias"
	default:
		return "placeholder"
	}
}

// binding 类型标识到序列化器的绑定。stored 是写入端的描述符，
// 与 ser.Descriptor() 结构相同时 identity 为 true，读取时不需要计划。
type binding struct {
	uid      schema.UID
	ser      Serializer
	stored   *schema.TypeDescriptor
	kind     bindingKind
	identity bool
}

// repoState 一个不可变快照，修改时整体复制后替换，读路径不加锁。
type repoState struct {
	byType  map[reflect.Type]Serializer
	byUID   map[schema.UID]*binding
	byName  map[string]reflect.Type
	aliases map[schema.UID]reflect.Type
	learned map[schema.UID]*schema.TypeDescriptor
	enums   map[reflect.Type][]string
}

func newRepoState() *repoState {
	return &repoState{
		byType:  make(map[reflect.Type]Serializer),
		byUID:   make(map[schema.UID]*binding),
		byName:  make(map[string]reflect.Type),
		aliases: make(map[schema.UID]reflect.Type),
		learned: make(map[schema.UID]*schema.TypeDescriptor),
		enums:   make(map[reflect.Type][]string),
	}
}

func (s *repoState) clone() *repoState {
	return &repoState{
		byType:  lo.Assign(s.byType),
		byUID:   lo.Assign(s.byUID),
		byName:  lo.Assign(s.byName),
		aliases: lo.Assign(s.aliases),
		learned: lo.Assign(s.learned),
		enums:   lo.Assign(s.enums),
	}
}

// Stats 仓库的运行统计。
type Stats struct {
	Generated            int64
	VerificationFailures int64
	Placeholders         int64
	Entries              int
}

// Entry 仓库中一个类型标识的概要。
type Entry struct {
	UID      schema.UID
	Name     string
	Kind     schema.Kind
	Strategy Strategy
	// Local 本地类型名，占位类型为空。
	Local string
	Alias bool
}

// Repository 类型到序列化器的注册表，可以被任意多个会话并发使用。
// 每个类型只生成一次序列化器，并发请求同一个类型时等待同一次生成。
type Repository struct {
	log.Binder

	cfg       Config
	generator Generator
	resolver  *evolution.Resolver

	mu    sync.Mutex
	state atomic.Pointer[repoState]
	group singleflight.Group

	generated      atomic.Int64
	verifyFailures atomic.Int64
	placeholders   atomic.Int64
}

// NewRepository 创建仓库并安装内置序列化器。
func NewRepository(opts ...Option) (*Repository, error) {
	r := &Repository{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if r.generator == nil {
		switch r.cfg.Strategy {
		case StrategyDirect:
			r.generator = DirectGenerator{}
		case StrategyIndirect:
			r.generator = IndirectGenerator{}
		}
	}
	resolver, err := evolution.NewResolver(r.cfg.PlanCacheSize, nil)
	if err != nil {
		return nil, err
	}
	r.resolver = resolver
	r.state.Store(newRepoState())
	if err := r.bootstrap(); err != nil {
		return nil, err
	}
	return r, nil
}

// Config 返回创建时的配置。
func (r *Repository) Config() Config {
	return r.cfg
}

// update 在锁内复制当前状态，fn 返回错误时放弃修改。
func (r *Repository) update(fn func(s *repoState) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.state.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	r.state.Store(next)
	metrics.SerialRepositoryEntries.Set(float64(len(next.byUID)))
	return nil
}

// Resolve 返回类型 t 的序列化器，首次调用时生成。
func (r *Repository) Resolve(t reflect.Type) (Serializer, error) {
	if t == nil {
		return nil, merr.WrapErrParameterMissing("type")
	}
	if ser, ok := r.state.Load().byType[t]; ok {
		return ser, nil
	}
	key := fmt.Sprintf("%s#%p", schema.TypeName(t), t)
	v, err, _ := r.group.Do(key, func() (any, error) {
		if ser, ok := r.state.Load().byType[t]; ok {
			return ser, nil
		}
		ser, err := r.generate(t)
		if err != nil {
			return nil, err
		}
		return r.install(t, ser)
	})
	if err != nil {
		return nil, err
	}
	return v.(Serializer), nil
}

// ResolveUID 返回类型标识对应的序列化器，本地未知的标识需要先通过 Provide 登记描述符。
func (r *Repository) ResolveUID(uid schema.UID) (Serializer, error) {
	b, err := r.bindingFor(uid)
	if err != nil {
		return nil, err
	}
	return b.ser, nil
}

func (r *Repository) generate(t reflect.Type) (Serializer, error) {
	if t == genericObjectType {
		return nil, merr.WrapErrUnsupportedType(schema.TypeName(t), "generic objects carry their own descriptor")
	}
	desc, err := schema.Build(t, schema.WithEnums(r.enumNames))
	if err != nil {
		return nil, err
	}
	uid := schema.Fingerprint(desc)
	switch desc.Kind {
	case schema.Struct:
		return r.generateStruct(uid, desc), nil
	case schema.Slice, schema.Array:
		return newSequenceSerializer(r, uid, desc, t, StrategyGeneric), nil
	case schema.Map:
		return newMapSerializer(r, uid, desc, t, StrategyGeneric), nil
	case schema.Pointer, schema.Interface:
		return &slotSerializer{serializerBase{uid: uid, desc: desc, typ: t, strategy: StrategyGeneric}}, nil
	default:
		return newPrimitiveSerializer(uid, desc, t, StrategyGeneric), nil
	}
}

// generateStruct 生成失败或校验不通过时回退到通用实现，调用方不会收到错误。
func (r *Repository) generateStruct(uid schema.UID, desc *schema.TypeDescriptor) Serializer {
	if r.generator == nil {
		return NewGenericSerializer(uid, desc)
	}
	r.generated.Inc()
	strategy := r.generator.Strategy()
	logger := r.Logger().With(log.FieldUID(uint64(uid)), log.FieldType(desc.Name), log.FieldStrategy(strategy))

	start := time.Now()
	ser, err := r.generator.Generate(r, uid, desc)
	if err == nil && r.cfg.Verify {
		err = r.verify(ser, uid, desc)
	}
	if err != nil {
		r.verifyFailures.Inc()
		metrics.SerialVerificationFailures.WithLabelValues(strategy.String()).Inc()
		logger.Warn("generated serializer rejected, fall back to generic",
			zap.Error(merr.WrapErrGenerationVerification(desc.Name, strategy.String(), err.Error())))
		return NewGenericSerializer(uid, desc)
	}
	metrics.SerialGeneratedSerializers.WithLabelValues(strategy.String()).Inc()
	metrics.SerialGenerationLatency.WithLabelValues(strategy.String()).Observe(float64(time.Since(start).Microseconds()) / 1000)
	logger.Debug("serializer generated", zap.Duration("cost", time.Since(start)))
	r.dump(ser)
	return ser
}

func (r *Repository) install(t reflect.Type, ser Serializer) (Serializer, error) {
	uid := ser.UID()
	err := r.update(func(s *repoState) error {
		if b, ok := s.byUID[uid]; ok {
			switch {
			case b.kind == bindLocal && b.ser.Type() != t:
				return merr.WrapErrUIDConflict(uid, schema.TypeName(b.ser.Type()), schema.TypeName(t))
			case b.kind == bindPlaceholder:
				// 先从流中见过的类型，现在有了本地实现。
				s.byUID[uid] = &binding{uid: uid, ser: ser, stored: b.stored, kind: bindLocal,
					identity: b.stored.StructurallyEqual(ser.Descriptor())}
			}
		} else {
			s.byUID[uid] = &binding{uid: uid, ser: ser, stored: ser.Descriptor(), kind: bindLocal, identity: true}
		}
		s.byType[t] = ser
		if _, ok := s.byName[ser.Descriptor().Name]; !ok {
			s.byName[ser.Descriptor().Name] = t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ser, nil
}

// bindingFor 查找类型标识的绑定，本地没有时依次尝试别名、同名类型与占位类型。
func (r *Repository) bindingFor(uid schema.UID) (*binding, error) {
	if b, ok := r.state.Load().byUID[uid]; ok {
		return b, nil
	}
	v, err, _ := r.group.Do("uid:"+uid.String(), func() (any, error) {
		s := r.state.Load()
		if b, ok := s.byUID[uid]; ok {
			return b, nil
		}
		b, err := r.bind(s, uid)
		if err != nil {
			return nil, err
		}
		err = r.update(func(s *repoState) error {
			if _, ok := s.byUID[uid]; !ok {
				s.byUID[uid] = b
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return r.state.Load().byUID[uid], nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*binding), nil
}

func (r *Repository) bind(s *repoState, uid schema.UID) (*binding, error) {
	stored, learned := s.learned[uid]

	if t, ok := s.aliases[uid]; ok {
		ser, err := r.Resolve(t)
		if err != nil {
			return nil, err
		}
		if !learned {
			return &binding{uid: uid, ser: ser, stored: ser.Descriptor(), kind: bindAlias, identity: true}, nil
		}
		if !evolution.CompatibleDescriptor(stored, ser.Descriptor()) {
			return nil, merr.WrapErrEvolution(stored.Name, "", stored.Kind.String(), ser.Descriptor().Kind.String(), "alias target has an incompatible layout")
		}
		return &binding{uid: uid, ser: ser, stored: stored, kind: bindAlias,
			identity: stored.StructurallyEqual(ser.Descriptor())}, nil
	}

	if !learned {
		return nil, merr.WrapErrUnknownType(uid)
	}

	if t, ok := s.byName[stored.Name]; ok {
		ser, err := r.Resolve(t)
		if err == nil && evolution.CompatibleDescriptor(stored, ser.Descriptor()) {
			b := &binding{uid: uid, ser: ser, stored: stored, kind: bindAlias,
				identity: stored.StructurallyEqual(ser.Descriptor())}
			if _, err := r.planFor(b); err == nil {
				return b, nil
			}
		}
	}

	r.placeholders.Inc()
	metrics.SerialPlaceholderTypes.Inc()
	r.Logger().RatedInfo(1, "install placeholder for unknown type",
		log.FieldUID(uint64(uid)), log.FieldType(stored.Name), zap.Stringer("kind", stored.Kind))
	return &binding{uid: uid, ser: newPlaceholder(r, uid, stored), stored: stored, kind: bindPlaceholder, identity: true}, nil
}

// planFor 结构相同的绑定不需要计划。
func (r *Repository) planFor(b *binding) (*evolution.Plan, error) {
	if b.identity || b.stored.Kind != schema.Struct {
		return nil, nil
	}
	return r.resolver.Plan(b.uid, b.stored, b.ser.Descriptor())
}

// Provide 登记流中携带的描述符。同一个类型标识只能对应一个结构。
func (r *Repository) Provide(uid schema.UID, desc *schema.TypeDescriptor) error {
	if uid.Reserved() {
		return merr.WrapErrStreamCorrupted(fmt.Sprintf("descriptor for reserved uid %s", uid))
	}
	s := r.state.Load()
	if known, ok := s.learned[uid]; ok {
		return r.checkSame(uid, known, desc)
	}
	if b, ok := s.byUID[uid]; ok {
		return r.checkSame(uid, b.stored, desc)
	}
	if got := schema.Fingerprint(desc); got != uid {
		return merr.WrapErrStreamCorrupted(fmt.Sprintf("descriptor %s fingerprints to %s, stream says %s", desc.Name, got, uid))
	}
	return r.update(func(s *repoState) error {
		if known, ok := s.learned[uid]; ok {
			return r.checkSame(uid, known, desc)
		}
		s.learned[uid] = desc
		return nil
	})
}

func (r *Repository) checkSame(uid schema.UID, known, desc *schema.TypeDescriptor) error {
	if known.StructurallyEqual(desc) {
		return nil
	}
	return merr.WrapErrUIDConflict(uid, known.Name, desc.Name, "stream descriptor differs from the known one")
}

// Register 预先生成给定值类型的序列化器，指针会被解引用。
func (r *Repository) Register(values ...any) error {
	for _, v := range values {
		t := reflect.TypeOf(v)
		if t == nil {
			return merr.WrapErrParameterMissing("value")
		}
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if _, err := r.Resolve(t); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAlias 将流中的类型标识映射到本地类型 t，用于类型改名或跨包移动。
// 别名只影响读取，写出时仍使用 t 自身的类型标识。
func (r *Repository) RegisterAlias(t reflect.Type, uid schema.UID) error {
	if uid.Reserved() {
		return merr.WrapErrParameterInvalidMsg("uid %s is reserved", uid)
	}
	ser, err := r.Resolve(t)
	if err != nil {
		return err
	}
	return r.update(func(s *repoState) error {
		if b, ok := s.byUID[uid]; ok && b.kind != bindPlaceholder && b.ser.Type() != t {
			return merr.WrapErrUIDConflict(uid, schema.TypeName(b.ser.Type()), schema.TypeName(t), "alias conflicts with an existing binding")
		}
		if b, ok := s.byUID[uid]; ok && b.kind == bindPlaceholder {
			delete(s.byUID, uid)
		}
		if ser.UID() != uid {
			s.aliases[uid] = t
		}
		return nil
	})
}

// RegisterEnum 为整数类型登记取值名称，下标即取值。每个类型只能登记一次，且必须在首次使用之前。
func (r *Repository) RegisterEnum(t reflect.Type, names []string) error {
	if t == nil {
		return merr.WrapErrParameterMissing("type")
	}
	if k := t.Kind(); !isIntKind(k) && !isUintKind(k) {
		return merr.WrapErrParameterInvalidMsg("enum %s must have an integer kind, got %s", schema.TypeName(t), k)
	}
	if len(names) == 0 {
		return merr.WrapErrParameterMissing("names")
	}
	if len(lo.Uniq(names)) != len(names) {
		return merr.WrapErrParameterInvalidMsg("enum %s has duplicated names", schema.TypeName(t))
	}
	return r.update(func(s *repoState) error {
		_, inUse := s.byType[t]
		_, registered := s.enums[t]
		if inUse || registered {
			return merr.WrapErrOperationNotSupported("RegisterEnum", fmt.Sprintf("%s is already registered or in use", schema.TypeName(t)))
		}
		s.enums[t] = slices.Clone(names)
		return nil
	})
}

func (r *Repository) enumNames(t reflect.Type) ([]string, bool) {
	names, ok := r.state.Load().enums[t]
	return names, ok
}

// RegisterConverter 登记字段类型迁移函数，storedType 与 localType 为规范类型名。
func (r *Repository) RegisterConverter(storedType, localType string, fn evolution.ConverterFunc) {
	r.resolver.RegisterConverter(storedType, localType, fn)
}

// Entries 返回所有已知类型标识，按标识排序。
func (r *Repository) Entries() []Entry {
	s := r.state.Load()
	entries := make([]Entry, 0, len(s.byUID))
	for uid, b := range s.byUID {
		e := Entry{
			UID:      uid,
			Name:     b.stored.Name,
			Kind:     b.stored.Kind,
			Strategy: b.ser.Strategy(),
			Alias:    b.kind == bindAlias,
		}
		if b.kind != bindPlaceholder {
			e.Local = schema.TypeName(b.ser.Type())
		}
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		switch {
		case a.UID < b.UID:
			return -1
		case a.UID > b.UID:
			return 1
		}
		return 0
	})
	return entries
}

func (r *Repository) Stats() Stats {
	return Stats{
		Generated:            r.generated.Load(),
		VerificationFailures: r.verifyFailures.Load(),
		Placeholders:         r.placeholders.Load(),
		Entries:              len(r.state.Load().byUID),
	}
}

// Preload 在协程池中并发生成多个类型的序列化器。
func (r *Repository) Preload(ctx context.Context, types ...reflect.Type) error {
	// 生成器中的 panic 只让对应的类型失败，不影响其他类型。
	pool := conc.NewDefaultPool[Serializer](
		conc.WithDisablePurge(true),
		conc.WithPanicHandler(func(v any) {
			r.Logger().Error("preload panicked", zap.Any("panic", v))
		}),
	)
	defer pool.Release()
	futures := make([]*conc.Future[Serializer], 0, len(types))
	for _, t := range types {
		t := t
		futures = append(futures, pool.Submit(func() (Serializer, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return r.Resolve(t)
		}))
	}
	return conc.AwaitAll(futures...)
}

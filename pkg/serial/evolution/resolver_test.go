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
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

func field(name string, kind schema.Kind, typ string) schema.FieldDescriptor {
	return schema.FieldDescriptor{Name: name, Kind: kind, Type: typ}
}

func desc(name string, fields ...schema.FieldDescriptor) *schema.TypeDescriptor {
	return &schema.TypeDescriptor{Name: name, Kind: schema.Struct, Fields: fields}
}

type ResolverSuite struct {
	suite.Suite
	resolver *Resolver
}

func (s *ResolverSuite) SetupTest() {
	r, err := NewResolver(16, nil)
	s.Require().NoError(err)
	s.resolver = r
}

func (s *ResolverSuite) TestIdentity() {
	d := desc("pkg.User", field("Age", schema.Int32, "int32"), field("Name", schema.String, "string"))
	plan, err := s.resolver.Plan(schema.Fingerprint(d), d, d)
	s.Require().NoError(err)
	s.True(plan.Identity)
	s.Len(plan.Steps, 2)
	s.Equal(1, plan.Steps[1].Target)
	s.Equal("identity", plan.Summary())
}

func (s *ResolverSuite) TestAddedAndRemoved() {
	stored := desc("pkg.User",
		field("Age", schema.Int32, "int32"),
		field("Name", schema.String, "string"),
		field("Nick", schema.String, "string"))
	added := field("Level", schema.Int64, "int")
	added.Default = "3"
	local := desc("pkg.User",
		field("Age", schema.Int32, "int32"),
		added,
		field("Name", schema.String, "string"))

	plan, err := s.resolver.Plan(schema.Fingerprint(stored), stored, local)
	s.Require().NoError(err)
	s.False(plan.Identity)

	s.Equal(ActionCopy, plan.Steps[0].Action)
	s.Equal(0, plan.Steps[0].Target)
	s.Equal(ActionCopy, plan.Steps[1].Action)
	s.Equal(2, plan.Steps[1].Target)
	s.Equal(ActionDiscard, plan.Steps[2].Action)
	s.Equal(-1, plan.Steps[2].Target)

	s.Equal([]DefaultStep{{Target: 1, Default: "3"}}, plan.Defaults)
	s.Equal("-Nick +Level", plan.Summary())
}

func (s *ResolverSuite) TestRenamed() {
	stored := desc("pkg.User", field("years", schema.Int32, "int32"))
	renamed := field("Age", schema.Int32, "int32")
	renamed.OldName = "years"
	local := desc("pkg.User", renamed)

	plan, err := s.resolver.Plan(1000, stored, local)
	s.Require().NoError(err)
	s.Equal(MatchRenamed, plan.Steps[0].Match)
	s.Equal(0, plan.Steps[0].Target)
	s.Empty(plan.Defaults)

	// 写入端记录了旧名称
	remote := field("Age2", schema.Int32, "int32")
	remote.OldName = "Age"
	stored = desc("pkg.User", remote)
	local = desc("pkg.User", field("Age", schema.Int64, "int64"))
	plan, err = s.resolver.Plan(1001, stored, local)
	s.Require().NoError(err)
	s.Equal(MatchRenamed, plan.Steps[0].Match)
	s.Equal(ActionCopy, plan.Steps[0].Action)
	s.Equal("Age2->Age", plan.Summary())
}

func (s *ResolverSuite) TestMigratedAndIncompatible() {
	stored := desc("pkg.User", field("Age", schema.Int32, "int32"))
	local := desc("pkg.User", field("Age", schema.Int64, "int64"))
	plan, err := s.resolver.Plan(2000, stored, local)
	s.Require().NoError(err)
	s.Equal(MatchMigrated, plan.Steps[0].Match)

	stored = desc("pkg.User", field("Age", schema.String, "string"))
	_, err = s.resolver.Plan(2001, stored, local)
	s.ErrorIs(err, merr.ErrEvolution)

	s.resolver.RegisterConverter("string", "int64", func(old any) (any, error) {
		return strconv.ParseInt(old.(string), 10, 64)
	})
	plan, err = s.resolver.Plan(2001, stored, local)
	s.Require().NoError(err)
	s.Equal(ActionConvert, plan.Steps[0].Action)
	s.Equal(MatchConverted, plan.Steps[0].Match)
	v, err := plan.Steps[0].Convert("42")
	s.NoError(err)
	s.Equal(int64(42), v)
	s.Equal("Age=>Age", plan.Summary())
}

func (s *ResolverSuite) TestCache() {
	stored := desc("pkg.User", field("A", schema.Int8, "int8"))
	local := desc("pkg.User", field("A", schema.Int16, "int16"))
	p1, err := s.resolver.Plan(3000, stored, local)
	s.Require().NoError(err)
	p2, err := s.resolver.Plan(3000, stored, local)
	s.Require().NoError(err)
	s.Same(p1, p2)

	s.resolver.RegisterConverter("int8", "int16", func(old any) (any, error) { return old, nil })
	p3, err := s.resolver.Plan(3000, stored, local)
	s.Require().NoError(err)
	s.NotSame(p1, p3)
	s.Equal(ActionConvert, p3.Steps[0].Action)
}

func (s *ResolverSuite) TestCollectionElements() {
	stored := desc("pkg.Team",
		field("IDs", schema.Slice, "[]int64"),
		field("Scores", schema.Map, "map[string]int64"))

	narrowSlice := desc("pkg.Team",
		field("IDs", schema.Slice, "[]int32"),
		field("Scores", schema.Map, "map[string]int64"))
	_, err := s.resolver.Plan(4000, stored, narrowSlice)
	s.ErrorIs(err, merr.ErrEvolution)

	narrowMap := desc("pkg.Team",
		field("IDs", schema.Slice, "[]int64"),
		field("Scores", schema.Map, "map[string]int8"))
	_, err = s.resolver.Plan(4000, stored, narrowMap)
	s.ErrorIs(err, merr.ErrEvolution)

	lossy := desc("pkg.Team",
		field("IDs", schema.Array, "[4]float64"),
		field("Scores", schema.Map, "map[string]int64"))
	_, err = s.resolver.Plan(4000, stored, lossy)
	s.ErrorIs(err, merr.ErrEvolution)

	widened := desc("pkg.Team",
		field("IDs", schema.Array, "[4]int64"),
		field("Scores", schema.Map, "map[string]any"))
	plan, err := s.resolver.Plan(4000, stored, widened)
	s.Require().NoError(err)
	s.Equal(MatchMigrated, plan.Steps[0].Match)
	s.Equal(MatchMigrated, plan.Steps[1].Match)

	s.resolver.RegisterConverter("[]int64", "[]int32", func(old any) (any, error) { return old, nil })
	plan, err = s.resolver.Plan(4000, stored, narrowSlice)
	s.Require().NoError(err)
	s.Equal(ActionConvert, plan.Steps[0].Action)
}

func TestResolver(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func TestCompatible(t *testing.T) {
	cases := []struct {
		stored, local schema.Kind
		ok            bool
	}{
		{schema.Int8, schema.Int64, true},
		{schema.Int64, schema.Int32, false},
		{schema.Int32, schema.Float64, true},
		{schema.Int64, schema.Float64, false},
		{schema.Uint8, schema.Int16, true},
		{schema.Uint16, schema.Int16, false},
		{schema.Uint32, schema.Uint64, true},
		{schema.Uint32, schema.Float64, true},
		{schema.Float32, schema.Float64, true},
		{schema.Float64, schema.Float32, false},
		{schema.Enum, schema.String, true},
		{schema.String, schema.Enum, true},
		{schema.String, schema.Int64, false},
		{schema.Struct, schema.Pointer, true},
		{schema.Slice, schema.Array, true},
		{schema.Map, schema.Slice, false},
		{schema.Bool, schema.Interface, true},
		{schema.Custom, schema.Bytes, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, Compatible(c.stored, c.local), "%s -> %s", c.stored, c.local)
	}
}

func TestNewResolverDefaults(t *testing.T) {
	r, err := NewResolver(0, NewConverters())
	assert.NoError(t, err)
	assert.NotNil(t, r.Converters())
	_, ok := r.Converters().Lookup("a", "b")
	assert.False(t, ok)
	assert.Equal(t, "discard", ActionDiscard.String())
}

func TestCompatibleType(t *testing.T) {
	cases := []struct {
		stored, local string
		ok            bool
	}{
		{"[]int32", "[]int64", true},
		{"[]int64", "[]int32", false},
		{"[2]int8", "[]int16", true},
		{"map[string]int64", "map[string]int8", false},
		{"map[int32]string", "map[int64]string", true},
		{"map[int64]string", "map[int32]string", false},
		{"[][]int64", "[][]int32", false},
		{"map[string][]int16", "map[string][]int64", true},
		{"[]any", "[]int64", true},
		{"[]int64", "[]any", true},
		{"[]pkg.User", "[]pkg.Member", true},
		{"[]string", "[]int64", false},
	}
	for _, c := range cases {
		sk, lk := kindOfName(c.stored), kindOfName(c.local)
		assert.Equal(t, c.ok, CompatibleType(sk, c.stored, lk, c.local), "%s -> %s", c.stored, c.local)
	}
}

func TestCompatibleDescriptor(t *testing.T) {
	stored := &schema.TypeDescriptor{Name: "pkg.IDs", Kind: schema.Slice, ElemKind: schema.Int64, Elem: "int64"}
	local := &schema.TypeDescriptor{Name: "pkg.IDs", Kind: schema.Slice, ElemKind: schema.Int16, Elem: "int16"}
	assert.False(t, CompatibleDescriptor(stored, local))
	assert.True(t, CompatibleDescriptor(local, stored))

	m := &schema.TypeDescriptor{Name: "map[string]int64", Kind: schema.Map, KeyKind: schema.String, Key: "string", ElemKind: schema.Int64, Elem: "int64"}
	n := &schema.TypeDescriptor{Name: "map[string]int8", Kind: schema.Map, KeyKind: schema.String, Key: "string", ElemKind: schema.Int8, Elem: "int8"}
	assert.False(t, CompatibleDescriptor(m, n))
	assert.True(t, CompatibleDescriptor(n, m))
	assert.False(t, CompatibleDescriptor(m, stored))
}

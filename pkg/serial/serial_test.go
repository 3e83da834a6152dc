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
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/garden-serial/pkg/serial/wire"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

type Level int32

var levelNames = []string{"Bronze", "Silver", "Gold"}

type Address struct {
	City string
	Zip  uint16
}

type Account struct {
	ID      int64
	Name    string
	Active  bool
	Score   float64
	Ratio   float32
	Small   int8
	Tiny    uint8
	Count   uint32
	N       int
	U       uint
	Avatar  []byte
	Tags    []string
	Attrs   map[string]int32
	Home    Address
	Work    *Address
	Level   Level
	Created time.Time
	Extra   any
	Scores  [3]int16
}

type Node struct {
	Name string
	Next *Node
}

type Pair struct {
	A *Node
	B *Node
	M map[string]int64
	N map[string]int64
}

type Flat struct {
	A int32
	B string
}

type withChan struct {
	Events chan int
}

func sampleAccount() Account {
	return Account{
		ID:      -42,
		Name:    "alice",
		Active:  true,
		Score:   99.5,
		Ratio:   0.25,
		Small:   -8,
		Tiny:    200,
		Count:   1 << 20,
		N:       -7,
		U:       7,
		Avatar:  []byte{1, 2, 3},
		Tags:    []string{"a", "b"},
		Attrs:   map[string]int32{"x": 1, "y": -2, "z": 3},
		Home:    Address{City: "Hangzhou", Zip: 310000 % 65536},
		Work:    &Address{City: "Shanghai", Zip: 2000},
		Level:   2,
		Created: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		Extra:   "note",
		Scores:  [3]int16{1, -1, 300},
	}
}

type SerialSuite struct {
	suite.Suite
	strategy Strategy
	repo     *Repository
}

func (s *SerialSuite) newRepo(opts ...Option) *Repository {
	repo, err := NewRepository(append([]Option{WithStrategy(s.strategy)}, opts...)...)
	s.Require().NoError(err)
	s.Require().NoError(repo.RegisterEnum(reflect.TypeOf(Level(0)), levelNames))
	return repo
}

func (s *SerialSuite) SetupTest() {
	s.repo = s.newRepo()
}

func (s *SerialSuite) TestRoundTrip() {
	acc := sampleAccount()
	data, err := s.repo.Marshal(acc)
	s.Require().NoError(err)

	var out Account
	s.Require().NoError(s.repo.Unmarshal(data, &out))
	s.Equal(acc, out)
	s.EqualValues(0, s.repo.Stats().VerificationFailures)

	ser, err := s.repo.Resolve(reflect.TypeOf(Account{}))
	s.Require().NoError(err)
	s.Equal(s.strategy, ser.Strategy())
}

func (s *SerialSuite) TestZeroValue() {
	data, err := s.repo.Marshal(Account{})
	s.Require().NoError(err)
	var out Account
	s.Require().NoError(s.repo.Unmarshal(data, &out))
	s.Equal(Account{}, out)
}

func (s *SerialSuite) TestPointerRoundTrip() {
	acc := sampleAccount()
	data, err := s.repo.Marshal(&acc)
	s.Require().NoError(err)

	var out *Account
	s.Require().NoError(s.repo.Unmarshal(data, &out))
	s.Require().NotNil(out)
	s.Equal(acc, *out)

	x, err := s.repo.Decode(data)
	s.Require().NoError(err)
	s.IsType(&Account{}, x)
	s.Equal(acc, *x.(*Account))
}

func (s *SerialSuite) TestByteIdenticalAcrossRepositories() {
	acc := sampleAccount()
	want, err := s.repo.Marshal(acc)
	s.Require().NoError(err)

	for _, strategy := range []Strategy{StrategyDirect, StrategyIndirect, StrategyGeneric} {
		repo, err := NewRepository(WithStrategy(strategy))
		s.Require().NoError(err)
		s.Require().NoError(repo.RegisterEnum(reflect.TypeOf(Level(0)), levelNames))
		got, err := repo.Marshal(acc)
		s.Require().NoError(err)
		s.True(bytes.Equal(want, got), "strategy %s", strategy)
	}
}

func (s *SerialSuite) TestCycle() {
	n := &Node{Name: "loop"}
	n.Next = n
	data, err := s.repo.Marshal(n)
	s.Require().NoError(err)

	var out *Node
	s.Require().NoError(s.repo.Unmarshal(data, &out))
	s.Equal("loop", out.Name)
	s.Same(out, out.Next)

	x, err := s.repo.Decode(data)
	s.Require().NoError(err)
	node := x.(*Node)
	s.Same(node, node.Next)
}

func (s *SerialSuite) TestSharedReferences() {
	shared := &Node{Name: "shared"}
	m := map[string]int64{"k": 1}
	data, err := s.repo.Marshal(Pair{A: shared, B: shared, M: m, N: m})
	s.Require().NoError(err)

	var out Pair
	s.Require().NoError(s.repo.Unmarshal(data, &out))
	s.Same(out.A, out.B)
	s.Equal("shared", out.A.Name)
	s.Equal(map[string]int64{"k": 1}, out.N)
	out.M["added"] = 2
	s.Equal(int64(2), out.N["added"])
}

func (s *SerialSuite) TestSelfReferencingSlice() {
	loop := []any{nil}
	loop[0] = loop
	data, err := s.repo.Marshal(loop)
	s.Require().NoError(err)

	x, err := s.repo.Decode(data)
	s.Require().NoError(err)
	out := x.([]any)
	s.Require().Len(out, 1)
	inner, ok := out[0].([]any)
	s.Require().True(ok)
	s.Equal(reflect.ValueOf(out).Pointer(), reflect.ValueOf(inner).Pointer())

	size, err := s.repo.Size(loop)
	s.Require().NoError(err)
	s.Equal(len(data), size)
}

func (s *SerialSuite) TestSharedSlices() {
	type holder struct {
		A    []int32
		B    []int32
		Head []int32
	}
	backing := []int32{1, 2, 3}
	data, err := s.repo.Marshal(holder{A: backing, B: backing, Head: backing[:1]})
	s.Require().NoError(err)

	var out holder
	s.Require().NoError(s.repo.Unmarshal(data, &out))
	s.Equal([]int32{1, 2, 3}, out.B)
	s.Equal([]int32{1}, out.Head)
	out.A[0] = 9
	s.Equal(int32(9), out.B[0])
	s.Equal(int32(1), out.Head[0])
}

func (s *SerialSuite) TestDistinctPointersStayDistinct() {
	data, err := s.repo.Marshal(Pair{A: &Node{Name: "x"}, B: &Node{Name: "x"}})
	s.Require().NoError(err)
	var out Pair
	s.Require().NoError(s.repo.Unmarshal(data, &out))
	s.NotSame(out.A, out.B)
	s.Equal(*out.A, *out.B)
}

func (s *SerialSuite) TestTopLevelValues() {
	cases := []any{
		nil,
		true,
		int8(-3),
		int64(1 << 40),
		uint16(9),
		3.5,
		"hello",
		[]byte("raw"),
		42,
		[]any{int64(1), "two", nil},
		map[string]any{"a": int64(1), "b": "x"},
		[]int32{1, 2, 3},
		map[int64]string{3: "c", 1: "a"},
	}
	for _, c := range cases {
		data, err := s.repo.Marshal(c)
		s.Require().NoError(err, "%T", c)
		got, err := s.repo.Decode(data)
		s.Require().NoError(err, "%T", c)
		s.Equal(c, got, "%T", c)
	}
}

func (s *SerialSuite) TestSize() {
	acc := sampleAccount()
	data, err := s.repo.Marshal(acc)
	s.Require().NoError(err)
	size, err := s.repo.Size(acc)
	s.Require().NoError(err)
	s.Equal(len(data), size)
}

func (s *SerialSuite) TestEnumByName() {
	acc := sampleAccount()
	acc.Level = 2
	data, err := s.repo.Marshal(acc)
	s.Require().NoError(err)

	reader, err := NewRepository(WithStrategy(s.strategy))
	s.Require().NoError(err)
	s.Require().NoError(reader.RegisterEnum(reflect.TypeOf(Level(0)), []string{"Gold", "Silver", "Bronze"}))
	var out Account
	s.Require().NoError(reader.Unmarshal(data, &out))
	s.Equal(Level(0), out.Level)

	// 本地没有的名称读为零值。
	missing, err := NewRepository(WithStrategy(s.strategy))
	s.Require().NoError(err)
	s.Require().NoError(missing.RegisterEnum(reflect.TypeOf(Level(0)), []string{"Iron", "Bronze"}))
	out = Account{}
	s.Require().NoError(missing.Unmarshal(data, &out))
	s.Equal(Level(0), out.Level)

	err = s.repo.RegisterEnum(reflect.TypeOf(Level(0)), levelNames)
	s.ErrorIs(err, merr.ErrOperationNotSupported)
}

func (s *SerialSuite) TestStreamSession() {
	var buf bytes.Buffer
	enc := s.repo.NewEncoder(&buf)
	s.Require().NoError(enc.Encode(Flat{A: 1, B: "first"}))
	first := buf.Len()
	s.Require().NoError(enc.Encode(Flat{A: 2, B: "again"}))
	second := buf.Len() - first
	s.Less(second, first)

	reader := s.newRepo()
	dec := reader.NewDecoder(&buf)
	var a, b Flat
	s.Require().NoError(dec.Decode(&a))
	s.Require().NoError(dec.Decode(&b))
	s.Equal(Flat{A: 1, B: "first"}, a)
	s.Equal(Flat{A: 2, B: "again"}, b)
	s.NotEqual(enc.SessionID(), dec.SessionID())

	// Reset 之后重新携带描述符。
	buf.Reset()
	enc.Reset()
	s.Require().NoError(enc.Encode(Flat{A: 2, B: "again"}))
	s.Equal(first, buf.Len())
}

func (s *SerialSuite) TestUnknownType() {
	w := wire.NewBufferWriter()
	defer w.Release()
	w.WriteTag(wire.TagValue)
	w.WriteUvarint(123456789)
	_, err := s.repo.Decode(w.Bytes())
	s.ErrorIs(err, merr.ErrUnknownType)
}

func (s *SerialSuite) TestTruncatedAndTrailing() {
	data, err := s.repo.Marshal(Flat{A: 1, B: "truncate me"})
	s.Require().NoError(err)

	var out Flat
	err = s.repo.Unmarshal(data[:len(data)-1], &out)
	s.ErrorIs(err, merr.ErrTruncatedStream)

	err = s.repo.Unmarshal(append(bytes.Clone(data), 0), &out)
	s.ErrorIs(err, merr.ErrStreamCorrupted)
}

func (s *SerialSuite) TestUnsupportedType() {
	_, err := s.repo.Marshal(withChan{})
	s.ErrorIs(err, merr.ErrUnsupportedType)

	err = s.repo.Unmarshal([]byte{wire.TagNull}, Flat{})
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SerialSuite) TestGenericObjectForwarding() {
	writer := s.newRepo()
	data, err := writer.Marshal(&Flat{A: 7, B: "proxy"})
	s.Require().NoError(err)

	// proxy 没有调用过 Flat，读到占位对象。
	proxy, err := NewRepository(WithStrategy(s.strategy))
	s.Require().NoError(err)
	x, err := proxy.Decode(data)
	s.Require().NoError(err)
	obj, ok := x.(*GenericObject)
	s.Require().True(ok, "%T", x)
	s.Equal("github.com/lk2023060901/garden-serial/pkg/serial.Flat", obj.Name())
	b, ok := obj.Get("B")
	s.True(ok)
	s.Equal("proxy", b)
	s.True(obj.Set("A", int32(8)))
	s.False(obj.Set("missing", 1))
	s.EqualValues(1, proxy.Stats().Placeholders)

	forwarded, err := proxy.Marshal(obj)
	s.Require().NoError(err)
	var out Flat
	s.Require().NoError(writer.Unmarshal(forwarded, &out))
	s.Equal(Flat{A: 8, B: "proxy"}, out)
}

func TestSerialDirect(t *testing.T) {
	suite.Run(t, &SerialSuite{strategy: StrategyDirect})
}

func TestSerialIndirect(t *testing.T) {
	suite.Run(t, &SerialSuite{strategy: StrategyIndirect})
}

func TestSerialGeneric(t *testing.T) {
	suite.Run(t, &SerialSuite{strategy: StrategyGeneric})
}

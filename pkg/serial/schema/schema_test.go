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

package schema

import (
	"net/url"
	"reflect"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/garden-serial/pkg/serial/wire"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

type Color int32

type Base struct {
	ID      int64
	Created time.Time
}

type user struct {
	Name    string
	Age     int32 `serial:"age,from=years"`
	Email   *string
	Tags    []string
	Avatar  []byte
	Attrs   map[string]int
	Color   Color `serial:",default=2"`
	Skip    int   `serial:"-"`
	private int
	Base
	Any any
}

// userReordered 与 user 字段相同、声明顺序不同。
type userReordered struct {
	Any   any
	Color Color `serial:",default=2"`
	Base
	Attrs  map[string]int
	Avatar []byte
	Tags   []string
	Email  *string
	Age    int32 `serial:"age"`
	Name   string
}

type withChan struct {
	Events chan int
}

type withNestedFunc struct {
	Hooks map[string][]func()
}

type dup struct {
	A int
	B int `serial:"A"`
}

type SchemaSuite struct {
	suite.Suite
}

func enums(t reflect.Type) ([]string, bool) {
	if t == reflect.TypeOf(Color(0)) {
		return []string{"Red", "Green", "Blue"}, true
	}
	return nil, false
}

func (s *SchemaSuite) TestBuildStruct() {
	d, err := Build(reflect.TypeOf(user{}), WithEnums(enums))
	s.Require().NoError(err)
	s.Equal(Struct, d.Kind)
	s.Equal("github.com/lk2023060901/garden-serial/pkg/serial/schema.user", d.Name)

	names := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		names = append(names, f.Name)
	}
	s.Equal([]string{"Any", "Attrs", "Avatar", "Color", "Created", "Email", "ID", "Name", "Tags", "age"}, names)

	age, _ := d.Field("age")
	s.Require().NotNil(age)
	s.Equal("years", age.OldName)
	s.Equal(Int32, age.Kind)
	s.Equal("int32", age.Type)

	color, _ := d.Field("Color")
	s.Equal(Enum, color.Kind)
	s.Equal("2", color.Default)

	created, _ := d.Field("Created")
	s.Equal(Time, created.Kind)
	s.Equal([]int{9, 1}, created.Index())
	s.Equal(unsafe.Offsetof(user{}.Base)+unsafe.Offsetof(Base{}.Created), created.Offset())

	avatar, _ := d.Field("Avatar")
	s.Equal(Bytes, avatar.Kind)
	s.True(avatar.Optional)
	email, _ := d.Field("Email")
	s.Equal(Pointer, email.Kind)
	s.Equal("*string", email.Type)
	attrs, _ := d.Field("Attrs")
	s.Equal("map[string]int", attrs.Type)
	anyField, idx := d.Field("Any")
	s.Equal(0, idx)
	s.Equal(Interface, anyField.Kind)
	s.Equal("any", anyField.Type)

	_, idx = d.Field("Skip")
	s.Equal(-1, idx)
	_, idx = d.Field("private")
	s.Equal(-1, idx)
}

func (s *SchemaSuite) TestFingerprintIgnoresDeclarationOrder() {
	a, err := Build(reflect.TypeOf(user{}), WithEnums(enums))
	s.Require().NoError(err)
	b, err := Build(reflect.TypeOf(userReordered{}), WithEnums(enums))
	s.Require().NoError(err)

	// 名称不同，指纹不同；改名后只剩 OldName 的差异，OldName 不参与计算。
	s.NotEqual(Fingerprint(a), Fingerprint(b))
	b.Name = a.Name
	s.Equal(Fingerprint(a), Fingerprint(b))
	s.True(a.StructurallyEqual(b))

	again, err := Build(reflect.TypeOf(user{}), WithEnums(enums))
	s.Require().NoError(err)
	s.Equal(Fingerprint(a), Fingerprint(again))
	s.False(Fingerprint(a).Reserved())
}

func (s *SchemaSuite) TestFingerprintChangesWithShape() {
	a, _ := Build(reflect.TypeOf(Base{}))
	b := *a
	b.Fields = append([]FieldDescriptor(nil), a.Fields...)
	b.Fields[0].Type = "int32"
	s.NotEqual(Fingerprint(a), Fingerprint(&b))
	s.False(a.StructurallyEqual(&b))

	c := *a
	c.Fields = append([]FieldDescriptor(nil), a.Fields...)
	c.Fields[0].OldName = "Ident"
	c.Fields[0].Default = "7"
	s.Equal(Fingerprint(a), Fingerprint(&c))
}

func (s *SchemaSuite) TestUnsupported() {
	for _, v := range []any{
		make(chan int),
		func() {},
		uintptr(1),
		complex(1, 2),
		unsafe.Pointer(nil),
		withChan{},
		withNestedFunc{},
		[]chan int{},
	} {
		_, err := Build(reflect.TypeOf(v))
		s.ErrorIs(err, merr.ErrUnsupportedType, "%T", v)
	}

	_, err := Build(reflect.TypeOf(dup{}))
	s.ErrorIs(err, merr.ErrUnsupportedType)

	_, err = Build(reflect.TypeOf(Color(0)), WithEnums(func(reflect.Type) ([]string, bool) { return nil, true }))
	s.NoError(err)
	_, err = Build(reflect.TypeOf(""), WithEnums(func(reflect.Type) ([]string, bool) { return nil, true }))
	s.ErrorIs(err, merr.ErrUnsupportedType)
}

func (s *SchemaSuite) TestKinds() {
	cases := []struct {
		v    any
		kind Kind
		name string
	}{
		{true, Bool, "bool"},
		{int(1), Int64, "int"},
		{int8(1), Int8, "int8"},
		{uint(1), Uint64, "uint"},
		{uint16(1), Uint16, "uint16"},
		{float32(1), Float32, "float32"},
		{"", String, "string"},
		{[]byte{}, Bytes, "[]uint8"},
		{[4]byte{}, Array, "[4]uint8"},
		{time.Time{}, Time, "time.Time"},
		{url.URL{}, Custom, "net/url.URL"},
		{[]any{}, Slice, "[]any"},
		{map[string]any{}, Map, "map[string]any"},
		{&Base{}, Pointer, "*github.com/lk2023060901/garden-serial/pkg/serial/schema.Base"},
		{(*error)(nil), Pointer, "*error"},
	}
	for _, c := range cases {
		t := reflect.TypeOf(c.v)
		kind, err := KindOf(t)
		s.Require().NoError(err, "%T", c.v)
		s.Equal(c.kind, kind, "%T", c.v)
		s.Equal(c.name, TypeName(t))
	}
	s.True(String.Primitive())
	s.False(Slice.Primitive())
	s.Equal(32, Float32.Bits())
	s.True(Uint8.Unsigned())
	s.True(Int8.Signed())
	s.Equal("kind(99)", Kind(99).String())
}

func (s *SchemaSuite) TestCollections() {
	d, err := Build(reflect.TypeOf(map[string][]Base{}))
	s.Require().NoError(err)
	s.Equal(Map, d.Kind)
	s.Equal(String, d.KeyKind)
	s.Equal(Slice, d.ElemKind)
	s.Equal("[]github.com/lk2023060901/garden-serial/pkg/serial/schema.Base", d.Elem)

	d, err = Build(reflect.TypeOf([3]int16{}))
	s.Require().NoError(err)
	s.Equal(3, d.Len)
	s.Equal(Int16, d.ElemKind)

	d, err = Build(reflect.TypeOf(Color(0)), WithEnums(enums))
	s.Require().NoError(err)
	s.Equal(Enum, d.Kind)
	s.Equal([]string{"Red", "Green", "Blue"}, d.Constants)
	s.Contains(d.String(), "Green")
}

func (s *SchemaSuite) TestDescriptorCodec() {
	for _, v := range []any{user{}, map[int]string{}, [2]float64{}, Color(0)} {
		d, err := Build(reflect.TypeOf(v), WithEnums(enums))
		s.Require().NoError(err)

		w := wire.NewBufferWriter()
		WriteDescriptor(w, d)
		r := wire.NewBytesReader(w.Bytes())
		got, err := ReadDescriptor(r)
		s.Require().NoError(err)
		s.True(r.AtEOF())
		s.True(d.StructurallyEqual(got), "%T", v)
		s.Equal(Fingerprint(d), Fingerprint(got))
		s.Nil(got.GoType())
		for i := range d.Fields {
			s.Equal(d.Fields[i].OldName, got.Fields[i].OldName)
			s.Equal(d.Fields[i].Default, got.Fields[i].Default)
			s.Equal(d.Fields[i].Optional, got.Fields[i].Optional)
		}

		data := w.Bytes()
		_, err = ReadDescriptor(wire.NewBytesReader(data[:len(data)-1]))
		s.ErrorIs(err, merr.ErrTruncatedStream)
		w.Release()
	}

	w := wire.NewBufferWriter()
	w.WriteString("bad")
	w.WriteTag(0x7e)
	_, err := ReadDescriptor(wire.NewBytesReader(w.Bytes()))
	s.ErrorIs(err, merr.ErrStreamCorrupted)
}

func TestSchema(t *testing.T) {
	suite.Run(t, new(SchemaSuite))
}

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
	"encoding"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/lk2023060901/garden-serial/pkg/metrics"
	"github.com/lk2023060901/garden-serial/pkg/serial/evolution"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/serial/wire"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

var (
	timeType        = reflect.TypeOf(time.Time{})
	anyType         = reflect.TypeOf((*any)(nil)).Elem()
	bytesType       = reflect.TypeOf([]byte(nil))
	marshalerType   = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*encoding.BinaryUnmarshaler)(nil)).Elem()
)

func kindMismatch(kind schema.Kind, v reflect.Value) error {
	return merr.WrapErrUnsupportedType(v.Type().String(), fmt.Sprintf("value cannot be written as %s", kind))
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// writeRaw 写出基础类别的原始值，names 只在枚举时使用。
func writeRaw(w *wire.Writer, kind schema.Kind, v reflect.Value, names []string) error {
	switch kind {
	case schema.Bool:
		if v.Kind() != reflect.Bool {
			return kindMismatch(kind, v)
		}
		w.WriteBool(v.Bool())
	case schema.Int8, schema.Int16, schema.Int32, schema.Int64:
		if !isIntKind(v.Kind()) {
			return kindMismatch(kind, v)
		}
		w.WriteVarint(v.Int())
	case schema.Uint8, schema.Uint16, schema.Uint32, schema.Uint64:
		if !isUintKind(v.Kind()) {
			return kindMismatch(kind, v)
		}
		w.WriteUvarint(v.Uint())
	case schema.Float32:
		if !isFloatKind(v.Kind()) {
			return kindMismatch(kind, v)
		}
		w.WriteFloat32(float32(v.Float()))
	case schema.Float64:
		if !isFloatKind(v.Kind()) {
			return kindMismatch(kind, v)
		}
		w.WriteFloat64(v.Float())
	case schema.String:
		if v.Kind() != reflect.String {
			return kindMismatch(kind, v)
		}
		w.WriteString(v.String())
	case schema.Bytes:
		if v.Kind() != reflect.Slice || v.Type().Elem().Kind() != reflect.Uint8 {
			return kindMismatch(kind, v)
		}
		w.WriteBytes(v.Bytes())
	case schema.Time:
		t, ok := v.Interface().(time.Time)
		if !ok {
			return kindMismatch(kind, v)
		}
		data, err := t.MarshalBinary()
		if err != nil {
			return merr.WrapErrUnsupportedType(v.Type().String(), err.Error())
		}
		w.WriteBytes(data)
	case schema.Enum:
		return writeEnum(w, v, names)
	case schema.Custom:
		data, err := marshalCustom(v)
		if err != nil {
			return err
		}
		w.WriteBytes(data)
	default:
		return kindMismatch(kind, v)
	}
	return nil
}

// writeEnum 按名称写出枚举；没有名称的取值写成十进制字符串。
func writeEnum(w *wire.Writer, v reflect.Value, names []string) error {
	var n int64
	switch {
	case v.Kind() == reflect.String:
		w.WriteString(v.String())
		return nil
	case isIntKind(v.Kind()):
		n = v.Int()
	case isUintKind(v.Kind()):
		u := v.Uint()
		if u > math.MaxInt64 {
			w.WriteString(strconv.FormatUint(u, 10))
			return nil
		}
		n = int64(u)
	default:
		return kindMismatch(schema.Enum, v)
	}
	if n >= 0 && n < int64(len(names)) && names[n] != "" {
		w.WriteString(names[n])
		return nil
	}
	w.WriteString(strconv.FormatInt(n, 10))
	return nil
}

func marshalCustom(v reflect.Value) ([]byte, error) {
	if v.Type() == bytesType {
		return v.Bytes(), nil
	}
	if v.Type().Implements(marshalerType) {
		return v.Interface().(encoding.BinaryMarshaler).MarshalBinary()
	}
	if !v.CanAddr() {
		tmp := reflect.New(v.Type()).Elem()
		tmp.Set(v)
		v = tmp
	}
	m, ok := v.Addr().Interface().(encoding.BinaryMarshaler)
	if !ok {
		return nil, kindMismatch(schema.Custom, v)
	}
	return m.MarshalBinary()
}

func unmarshalCustom(v reflect.Value, data []byte) error {
	if !v.CanAddr() {
		return merr.WrapErrUnsupportedType(v.Type().String(), "custom value is not addressable")
	}
	u, ok := v.Addr().Interface().(encoding.BinaryUnmarshaler)
	if !ok {
		return merr.WrapErrUnsupportedType(v.Type().String(), "missing UnmarshalBinary")
	}
	if err := u.UnmarshalBinary(data); err != nil {
		return merr.WrapErrStreamCorrupted(fmt.Sprintf("unmarshal %s: %s", v.Type(), err.Error()))
	}
	return nil
}

func readTime(r *wire.Reader) (time.Time, error) {
	data, err := r.ReadBytes()
	if err != nil || data == nil {
		return time.Time{}, err
	}
	var t time.Time
	if err := t.UnmarshalBinary(data); err != nil {
		return time.Time{}, merr.WrapErrStreamCorrupted("invalid time: " + err.Error())
	}
	return t, nil
}

func overflow(v reflect.Value, x any) error {
	return merr.WrapErrStreamCorrupted(fmt.Sprintf("value %v overflows %s", x, v.Type()))
}

// readRaw 按本地类别读取原始值，v 的类别与 kind 一致。
func readRaw(r *wire.Reader, kind schema.Kind, v reflect.Value, names []string) error {
	switch kind {
	case schema.Bool:
		b, err := r.ReadBool()
		if err != nil {
			return err
		}
		v.SetBool(b)
	case schema.Int8, schema.Int16, schema.Int32, schema.Int64:
		x, err := r.ReadVarint()
		if err != nil {
			return err
		}
		if v.OverflowInt(x) {
			return overflow(v, x)
		}
		v.SetInt(x)
	case schema.Uint8, schema.Uint16, schema.Uint32, schema.Uint64:
		x, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		if v.OverflowUint(x) {
			return overflow(v, x)
		}
		v.SetUint(x)
	case schema.Float32:
		f, err := r.ReadFloat32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(f))
	case schema.Float64:
		f, err := r.ReadFloat64()
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case schema.String:
		s, err := r.ReadString()
		if err != nil {
			return err
		}
		v.SetString(s)
	case schema.Bytes:
		b, err := r.ReadBytes()
		if err != nil {
			return err
		}
		v.SetBytes(b)
	case schema.Time:
		t, err := readTime(r)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(t))
	case schema.Enum:
		name, err := r.ReadString()
		if err != nil {
			return err
		}
		return setEnum(v, name, names)
	case schema.Custom:
		data, err := r.ReadBytes()
		if err != nil {
			return err
		}
		if v.Type() == bytesType {
			v.SetBytes(data)
			return nil
		}
		return unmarshalCustom(v, data)
	default:
		return merr.WrapErrStreamCorrupted(fmt.Sprintf("%s is not a primitive kind", kind))
	}
	return nil
}

// readRawAny 按存储类别读取基础值，返回对应的 Go 自然类型，枚举返回名称。
func readRawAny(r *wire.Reader, kind schema.Kind) (any, error) {
	switch kind {
	case schema.Bool:
		return r.ReadBool()
	case schema.Int8:
		return wire.ReadInt[int8](r)
	case schema.Int16:
		return wire.ReadInt[int16](r)
	case schema.Int32:
		return wire.ReadInt[int32](r)
	case schema.Int64:
		return r.ReadVarint()
	case schema.Uint8:
		return wire.ReadUint[uint8](r)
	case schema.Uint16:
		return wire.ReadUint[uint16](r)
	case schema.Uint32:
		return wire.ReadUint[uint32](r)
	case schema.Uint64:
		return r.ReadUvarint()
	case schema.Float32:
		return r.ReadFloat32()
	case schema.Float64:
		return r.ReadFloat64()
	case schema.String, schema.Enum:
		return r.ReadString()
	case schema.Bytes, schema.Custom:
		return r.ReadBytes()
	case schema.Time:
		return readTime(r)
	default:
		return nil, merr.WrapErrStreamCorrupted(fmt.Sprintf("%s is not a primitive kind", kind))
	}
}

func setInteger(v reflect.Value, n int64) error {
	switch {
	case isIntKind(v.Kind()):
		if v.OverflowInt(n) {
			return overflow(v, n)
		}
		v.SetInt(n)
	case isUintKind(v.Kind()):
		if n < 0 || v.OverflowUint(uint64(n)) {
			return overflow(v, n)
		}
		v.SetUint(uint64(n))
	default:
		return merr.WrapErrUnsupportedType(v.Type().String(), "not an integer")
	}
	return nil
}

// setEnum 名称在本地不存在时取零值并计数，不视为错误。
func setEnum(v reflect.Value, name string, names []string) error {
	if v.Kind() == reflect.String {
		v.SetString(name)
		return nil
	}
	for i, n := range names {
		if n == name {
			return setInteger(v, int64(i))
		}
	}
	if n, err := strconv.ParseInt(name, 10, 64); err == nil {
		return setInteger(v, n)
	}
	metrics.SerialEnumMisses.Inc()
	v.Set(reflect.Zero(v.Type()))
	return nil
}

// assign 将存储端的值放入本地字段，执行拓宽转换。
func (d *Decoder) assign(v reflect.Value, x any) error {
	t := v.Type()
	if x == nil {
		v.Set(reflect.Zero(t))
		return nil
	}
	xv := reflect.ValueOf(x)
	if xv.Type().AssignableTo(t) {
		v.Set(xv)
		return nil
	}
	if names, ok := d.repo.enumNames(t); ok {
		if s, ok := x.(string); ok {
			return setEnum(v, s, names)
		}
	}
	if reflect.PointerTo(t).Implements(unmarshalerType) && t != timeType {
		if b, ok := x.([]byte); ok {
			return unmarshalCustom(v, b)
		}
	}

	xk := xv.Kind()
	switch k := v.Kind(); {
	case isIntKind(k):
		switch {
		case isIntKind(xk):
			return setInteger(v, xv.Int())
		case isUintKind(xk):
			if u := xv.Uint(); u <= math.MaxInt64 {
				return setInteger(v, int64(u))
			}
			return overflow(v, x)
		}
	case isUintKind(k):
		switch {
		case isUintKind(xk):
			if v.OverflowUint(xv.Uint()) {
				return overflow(v, x)
			}
			v.SetUint(xv.Uint())
			return nil
		case isIntKind(xk):
			return setInteger(v, xv.Int())
		}
	case isFloatKind(k):
		switch {
		case isFloatKind(xk):
			v.SetFloat(xv.Float())
			return nil
		case isIntKind(xk):
			v.SetFloat(float64(xv.Int()))
			return nil
		case isUintKind(xk):
			v.SetFloat(float64(xv.Uint()))
			return nil
		}
	case k == reflect.String:
		if xk == reflect.String {
			v.SetString(xv.String())
			return nil
		}
	case k == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		if b, ok := x.([]byte); ok {
			v.SetBytes(b)
			return nil
		}
	case k == reflect.Pointer && xk != reflect.Pointer:
		p := reflect.New(t.Elem())
		if err := d.assign(p.Elem(), x); err != nil {
			return err
		}
		v.Set(p)
		return nil
	}
	if xk == reflect.Pointer && !xv.IsNil() && xv.Elem().Type().AssignableTo(t) {
		v.Set(xv.Elem())
		return nil
	}
	return merr.WrapErrEvolution(schema.TypeName(t), "", xv.Type().String(), schema.TypeName(t), "value is not assignable")
}

// setDefault 按本地字段类型解析标签中声明的默认值，未声明时置零。
func (d *Decoder) setDefault(v reflect.Value, def string) error {
	t := v.Type()
	if def == "" {
		v.Set(reflect.Zero(t))
		return nil
	}
	if names, ok := d.repo.enumNames(t); ok {
		return setEnum(v, def, names)
	}
	if t == timeType {
		tm, err := time.Parse(time.RFC3339Nano, def)
		if err != nil {
			return merr.WrapErrParameterInvalidMsg("default %q of %s: %s", def, t, err.Error())
		}
		v.Set(reflect.ValueOf(tm))
		return nil
	}

	var err error
	switch k := v.Kind(); {
	case k == reflect.Bool:
		var b bool
		if b, err = strconv.ParseBool(def); err == nil {
			v.SetBool(b)
		}
	case isIntKind(k):
		var n int64
		if n, err = strconv.ParseInt(def, 0, t.Bits()); err == nil {
			v.SetInt(n)
		}
	case isUintKind(k):
		var n uint64
		if n, err = strconv.ParseUint(def, 0, t.Bits()); err == nil {
			v.SetUint(n)
		}
	case isFloatKind(k):
		var f float64
		if f, err = strconv.ParseFloat(def, t.Bits()); err == nil {
			v.SetFloat(f)
		}
	case k == reflect.String:
		v.SetString(def)
	case k == reflect.Pointer:
		p := reflect.New(t.Elem())
		if err = d.setDefault(p.Elem(), def); err == nil {
			v.Set(p)
		}
		return err
	default:
		return merr.WrapErrParameterInvalidMsg("default value is not supported for %s", t)
	}
	if err != nil {
		return merr.WrapErrParameterInvalidMsg("default %q of %s: %s", def, t, err.Error())
	}
	return nil
}

// primitiveSerializer 基础类型出现在接口字段或顶层时使用的序列化器。
type primitiveSerializer struct {
	serializerBase
	kind  schema.Kind
	names []string
}

func newPrimitiveSerializer(uid schema.UID, desc *schema.TypeDescriptor, typ reflect.Type, strategy Strategy) *primitiveSerializer {
	return &primitiveSerializer{
		serializerBase: serializerBase{uid: uid, desc: desc, typ: typ, strategy: strategy},
		kind:           desc.Kind,
		names:          desc.Constants,
	}
}

func (s *primitiveSerializer) Write(e *Encoder, v reflect.Value) error {
	return writeRaw(e.w, s.kind, v, s.names)
}

func (s *primitiveSerializer) Read(d *Decoder, v reflect.Value, _ *evolution.Plan) error {
	return readRaw(d.r, s.kind, v, s.names)
}

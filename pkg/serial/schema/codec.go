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
	"fmt"

	"github.com/lk2023060901/garden-serial/pkg/serial/wire"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// WriteDescriptor 将描述符内联写入流，读取端据此跳过或泛型解码未知类型。
func WriteDescriptor(w *wire.Writer, d *TypeDescriptor) {
	w.WriteString(d.Name)
	w.WriteTag(byte(d.Kind))
	w.WriteUvarint(uint64(len(d.Fields)))
	for i := range d.Fields {
		f := &d.Fields[i]
		w.WriteString(f.Name)
		w.WriteString(f.OldName)
		w.WriteTag(byte(f.Kind))
		w.WriteString(f.Type)
		w.WriteBool(f.Optional)
		w.WriteString(f.Default)
	}
	w.WriteTag(byte(d.ElemKind))
	w.WriteString(d.Elem)
	w.WriteTag(byte(d.KeyKind))
	w.WriteString(d.Key)
	w.WriteUvarint(uint64(d.Len))
	w.WriteUvarint(uint64(len(d.Constants)))
	for _, c := range d.Constants {
		w.WriteString(c)
	}
}

func readKind(r *wire.Reader, allowInvalid bool) (Kind, error) {
	b, err := r.ReadByte()
	if err != nil {
		return Invalid, err
	}
	k := Kind(b)
	if k == Invalid && allowInvalid {
		return k, nil
	}
	if !k.Valid() {
		return Invalid, merr.WrapErrStreamCorrupted(fmt.Sprintf("invalid kind %d in descriptor", b))
	}
	return k, nil
}

// ReadDescriptor 读取 WriteDescriptor 写出的描述符。
func ReadDescriptor(r *wire.Reader) (*TypeDescriptor, error) {
	var (
		d   = &TypeDescriptor{}
		err error
	)
	if d.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	if d.Kind, err = readKind(r, false); err != nil {
		return nil, err
	}
	n, err := r.ReadLength()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		d.Fields = make([]FieldDescriptor, 0, min(n, 1024))
	}
	for i := 0; i < n; i++ {
		var f FieldDescriptor
		if f.Name, err = r.ReadString(); err != nil {
			return nil, err
		}
		if f.OldName, err = r.ReadString(); err != nil {
			return nil, err
		}
		if f.Kind, err = readKind(r, false); err != nil {
			return nil, err
		}
		if f.Type, err = r.ReadString(); err != nil {
			return nil, err
		}
		if f.Optional, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if f.Default, err = r.ReadString(); err != nil {
			return nil, err
		}
		d.Fields = append(d.Fields, f)
	}
	if d.ElemKind, err = readKind(r, true); err != nil {
		return nil, err
	}
	if d.Elem, err = r.ReadString(); err != nil {
		return nil, err
	}
	if d.KeyKind, err = readKind(r, true); err != nil {
		return nil, err
	}
	if d.Key, err = r.ReadString(); err != nil {
		return nil, err
	}
	if d.Len, err = r.ReadLength(); err != nil {
		return nil, err
	}
	if n, err = r.ReadLength(); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		c, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		d.Constants = append(d.Constants, c)
	}
	return d, nil
}

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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
)

// sourceWriter 生成序列化器对应的可读源码，仅用于调试输出。
type sourceWriter struct {
	name     string
	writes   strings.Builder
	reads    strings.Builder
	header   string
	strategy Strategy
}

func newSourceWriter(uid schema.UID, desc *schema.TypeDescriptor, strategy Strategy) *sourceWriter {
	sw := &sourceWriter{
		name:     serializerName(desc.Name),
		strategy: strategy,
	}
	sw.header = fmt.Sprintf("// %s serializer for %s (uid %s)\n", strategy, desc.Name, uid)
	return sw
}

func serializerName(typeName string) string {
	var sb strings.Builder
	for _, r := range typeName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String() + "Serializer"
}

func (sw *sourceWriter) field(f *schema.FieldDescriptor, expr string) {
	fmt.Fprintf(&sw.writes, "\t// %s %s\n\tif err := write%s(e, %s); err != nil {\n\t\treturn err\n\t}\n",
		f.Name, f.Type, f.Kind, expr)
	fmt.Fprintf(&sw.reads, "\tif err := read%s(d, %s); err != nil {\n\t\treturn err\n\t}\n",
		f.Kind, expr)
}

func (sw *sourceWriter) String() string {
	var sb strings.Builder
	sb.WriteString(sw.header)
	fmt.Fprintf(&sb, "func (s *%s) Write(e *Encoder, v reflect.Value) error {\n", sw.name)
	if sw.strategy == StrategyDirect {
		sb.WriteString("\tp := v.Addr().UnsafePointer()\n")
	}
	sb.WriteString(sw.writes.String())
	sb.WriteString("\treturn nil\n}\n\n")
	fmt.Fprintf(&sb, "func (s *%s) Read(d *Decoder, v reflect.Value, plan *evolution.Plan) error {\n", sw.name)
	sb.WriteString("\tif plan != nil && !plan.Identity {\n\t\treturn readWithPlan(d, v, plan, s)\n\t}\n")
	if sw.strategy == StrategyDirect {
		sb.WriteString("\tp := v.Addr().UnsafePointer()\n")
	}
	sb.WriteString(sw.reads.String())
	sb.WriteString("\treturn nil\n}\n")
	return sb.String()
}

func directExpr(f *schema.FieldDescriptor) string {
	return fmt.Sprintf("(*%s)(unsafe.Add(p, %d))", f.Type, f.Offset())
}

func indirectExpr(f *schema.FieldDescriptor) string {
	index := f.Index()
	if len(index) == 1 {
		return fmt.Sprintf("v.Field(%d)", index[0])
	}
	parts := make([]string, len(index))
	for i, x := range index {
		parts[i] = fmt.Sprint(x)
	}
	return fmt.Sprintf("v.FieldByIndex([]int{%s})", strings.Join(parts, ", "))
}

// sourceProvider 能输出生成源码的序列化器。
type sourceProvider interface {
	Source() string
}

// dump 按配置输出生成的源码；写文件失败只记录日志。
func (r *Repository) dump(ser Serializer) {
	sp, ok := ser.(sourceProvider)
	if !ok || !r.cfg.DumpSource {
		return
	}
	src := sp.Source()
	logger := r.Logger().With(log.FieldUID(uint64(ser.UID())), log.FieldType(ser.Descriptor().Name))
	logger.Debug("generated serializer source", zap.String("source", src))
	if r.cfg.DumpDir == "" {
		return
	}
	if err := os.MkdirAll(r.cfg.DumpDir, 0o755); err != nil {
		logger.Warn("failed to create dump dir", zap.String("dir", r.cfg.DumpDir), zap.Error(err))
		return
	}
	path := filepath.Join(r.cfg.DumpDir, ser.UID().String()+".go.txt")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		logger.Warn("failed to write serializer source", zap.String("path", path), zap.Error(err))
	}
}

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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	serialMetricSubsystem = "serial"

	// 字段不匹配原因
	MismatchMissedLocal  = "missed_local"  // 流中有、本地没有，读取后丢弃
	MismatchMissedStream = "missed_stream" // 本地有、流中没有，使用默认值
	MismatchRenamed      = "renamed"
	MismatchMigrated     = "migrated" // 同名不同类型，按拓宽规则复制
	MismatchConverted    = "converted"

	DirectionEncode = "encode"
	DirectionDecode = "decode"
)

var (
	serialMetricsRegisterOnce sync.Once

	SerialGeneratedSerializers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: gardenNamespace,
		Subsystem: serialMetricSubsystem,
		Name:      "generated_serializers_total",
		Help:      "按策略统计生成的序列化器数量",
	}, []string{strategyLabelName})

	SerialGenerationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: gardenNamespace,
		Subsystem: serialMetricSubsystem,
		Name:      "generation_latency",
		Help:      "生成单个序列化器的耗时，单位毫秒",
		Buckets:   buckets,
	}, []string{strategyLabelName})

	SerialVerificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: gardenNamespace,
		Subsystem: serialMetricSubsystem,
		Name:      "verification_failures_total",
		Help:      "生成代码校验失败并回退到通用序列化器的次数",
	}, []string{strategyLabelName})

	SerialRepositoryEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: gardenNamespace,
		Subsystem: serialMetricSubsystem,
		Name:      "repository_entries",
		Help:      "仓库中已知的类型标识数量",
	})

	SerialPlaceholderTypes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: gardenNamespace,
		Subsystem: serialMetricSubsystem,
		Name:      "placeholder_types_total",
		Help:      "根据流中携带的描述符安装的占位类型数量",
	})

	SerialFieldMismatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: gardenNamespace,
		Subsystem: serialMetricSubsystem,
		Name:      "field_mismatches_total",
		Help:      "结构演进时按原因统计的字段不匹配次数",
	}, []string{reasonLabelName})

	SerialEnumMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: gardenNamespace,
		Subsystem: serialMetricSubsystem,
		Name:      "enum_misses_total",
		Help:      "流中的枚举名称在本地不存在的次数",
	})

	SerialBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: gardenNamespace,
		Subsystem: serialMetricSubsystem,
		Name:      "bytes_total",
		Help:      "编码或解码的字节数",
	}, []string{directionLabel})
)

// RegisterSerialMetrics 注册序列化相关指标。
func RegisterSerialMetrics(registry prometheus.Registerer) {
	serialMetricsRegisterOnce.Do(func() {
		registry.MustRegister(SerialGeneratedSerializers)
		registry.MustRegister(SerialGenerationLatency)
		registry.MustRegister(SerialVerificationFailures)
		registry.MustRegister(SerialRepositoryEntries)
		registry.MustRegister(SerialPlaceholderTypes)
		registry.MustRegister(SerialFieldMismatches)
		registry.MustRegister(SerialEnumMisses)
		registry.MustRegister(SerialBytes)
	})
}

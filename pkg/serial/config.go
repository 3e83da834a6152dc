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
	"github.com/lk2023060901/garden-serial/pkg/serial/evolution"
	"github.com/lk2023060901/garden-serial/pkg/serial/wire"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
	"github.com/lk2023060901/garden-serial/pkg/util/viper"
)

// Strategy 序列化器的实现方式。
type Strategy string

const (
	// StrategyDirect 通过 unsafe 指针与字段偏移直接读写。
	StrategyDirect Strategy = "direct"
	// StrategyIndirect 通过 reflect 字段句柄读写。
	StrategyIndirect Strategy = "indirect"
	// StrategyGeneric 每次调用按描述符查找字段，生成代码校验失败时的回退实现。
	StrategyGeneric     Strategy = "generic"
	StrategyBootstrap   Strategy = "bootstrap"
	StrategyPlaceholder Strategy = "placeholder"
)

func (s Strategy) String() string {
	return string(s)
}

// EnvPrefix 环境变量前缀，serial.strategy 对应 GARDEN_SERIAL_STRATEGY。
const EnvPrefix = "GARDEN"

// Config 序列化引擎的配置。
type Config struct {
	// Strategy 结构体序列化器的生成方式，只能是 direct 或 indirect，generic 用于排查问题。
	Strategy Strategy `mapstructure:"strategy"`
	// Verify 生成后先用合成实例校验，失败时回退到通用实现。
	Verify bool `mapstructure:"verify"`
	// DumpSource 以 debug 级别输出生成的序列化器源码。
	DumpSource bool `mapstructure:"dumpSource"`
	// DumpDir 非空时将源码写入 <DumpDir>/<uid>.go.txt。
	DumpDir       string `mapstructure:"dumpDir"`
	PlanCacheSize int    `mapstructure:"planCacheSize"`
	// MaxLength 单个字符串、字节序列或集合的最大长度。
	MaxLength int `mapstructure:"maxLength"`
}

func DefaultConfig() Config {
	return Config{
		Strategy:      StrategyDirect,
		Verify:        true,
		PlanCacheSize: evolution.DefaultPlanCacheSize,
		MaxLength:     wire.DefaultMaxLength,
	}
}

func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyDirect, StrategyIndirect, StrategyGeneric:
	default:
		return merr.WrapErrParameterInvalidMsg("unknown strategy %q, expect direct or indirect", string(c.Strategy))
	}
	if c.PlanCacheSize < 0 {
		return merr.WrapErrParameterInvalidRange(0, 1<<20, c.PlanCacheSize, "planCacheSize")
	}
	if c.MaxLength < 0 {
		return merr.WrapErrParameterInvalidRange(0, 1<<30, c.MaxLength, "maxLength")
	}
	if c.DumpDir != "" && !c.DumpSource {
		return merr.WrapErrParameterInvalidMsg("dumpDir %s is set but dumpSource is disabled", c.DumpDir)
	}
	return nil
}

// LoadConfig 读取配置文件中的 serial 段，path 为空时只使用缺省值与环境变量。
func LoadConfig(path string) (Config, error) {
	v := viper.NewWithEnv(EnvPrefix)
	def := DefaultConfig()
	v.SetDefault("serial.strategy", string(def.Strategy))
	v.SetDefault("serial.verify", def.Verify)
	v.SetDefault("serial.dumpSource", def.DumpSource)
	v.SetDefault("serial.dumpDir", def.DumpDir)
	v.SetDefault("serial.planCacheSize", def.PlanCacheSize)
	v.SetDefault("serial.maxLength", def.MaxLength)
	if path != "" {
		if err := v.LoadFile(path); err != nil {
			return Config{}, merr.WrapErrIoFailed(path, err)
		}
	}

	// Unmarshal 逐个 key 取值，环境变量覆盖才会生效。
	root := struct {
		Serial Config `mapstructure:"serial"`
	}{Serial: def}
	if err := v.Unmarshal(&root); err != nil {
		return Config{}, merr.WrapErrParameterInvalidMsg("decode serial config: %s", err.Error())
	}
	if err := root.Serial.Validate(); err != nil {
		return Config{}, err
	}
	return root.Serial, nil
}

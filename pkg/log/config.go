// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogMaxSize = 300 // 日志文件默认最大大小，单位 MB。

	FormatJSON    = "json"
	FormatConsole = "console"
)

// FileLogConfig 文件日志配置。
type FileLogConfig struct {
	// RootPath 为日志文件根目录。
	RootPath string `mapstructure:"rootpath" json:"rootpath"`
	// Filename 为日志文件名，留空表示关闭文件日志。
	Filename string `mapstructure:"filename" json:"filename"`
	// MaxSize 单个日志文件的最大大小，单位 MB。
	MaxSize int `mapstructure:"max-size" json:"max-size"`
	// MaxDays 日志文件最大保留天数，默认为不删除。
	MaxDays int `mapstructure:"max-days" json:"max-days"`
	// MaxBackups 最多保留多少个历史日志文件。
	MaxBackups int `mapstructure:"max-backups" json:"max-backups"`
}

// Config 日志配置，字段名与配置文件 log 节点一致。
type Config struct {
	Level string `mapstructure:"level" json:"level"`
	// Format 可选 json 或 console，默认 console。
	Format           string        `mapstructure:"format" json:"format"`
	DisableTimestamp bool          `mapstructure:"disable-timestamp" json:"disable-timestamp"`
	Stdout           bool          `mapstructure:"stdout" json:"stdout"`
	File             FileLogConfig `mapstructure:"file" json:"file"`
	// Development 为 true 时 DPanic 会直接 panic，并对 Warn 以上级别输出堆栈。
	Development       bool `mapstructure:"development" json:"development"`
	DisableCaller     bool `mapstructure:"disable-caller" json:"disable-caller"`
	DisableStacktrace bool `mapstructure:"disable-stacktrace" json:"disable-stacktrace"`
	// Sampling 以“每秒”为单位，具体行为参考 zapcore.NewSampler。
	Sampling *zap.SamplingConfig `mapstructure:"sampling" json:"sampling"`
}

// ZapProperties 记录 zap 日志相关的核心信息。
type ZapProperties struct {
	Core   zapcore.Core
	Syncer zapcore.WriteSyncer
	Level  zap.AtomicLevel
}

func (cfg *Config) encoder() zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "name",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000 -07:00"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.DisableTimestamp {
		encCfg.TimeKey = ""
	}
	if strings.EqualFold(cfg.Format, FormatJSON) {
		return zapcore.NewJSONEncoder(encCfg)
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

func (cfg *Config) buildOptions(errSink zapcore.WriteSyncer) []zap.Option {
	opts := []zap.Option{zap.ErrorOutput(errSink)}

	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	if !cfg.DisableCaller {
		opts = append(opts, zap.AddCaller())
	}

	stackLevel := zap.ErrorLevel
	if cfg.Development {
		stackLevel = zap.WarnLevel
	}
	if !cfg.DisableStacktrace {
		opts = append(opts, zap.AddStacktrace(stackLevel))
	}

	if cfg.Sampling != nil {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, time.Second, cfg.Sampling.Initial, cfg.Sampling.Thereafter, zapcore.SamplerHook(cfg.Sampling.Hook))
		}))
	}
	return opts
}

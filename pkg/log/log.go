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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _globalL, _globalP, _globalS, _globalR atomic.Value

var (
	_globalLevelLogger sync.Map
	_namedRateLimiters sync.Map
)

// RateLimiter 限流日志使用的最小接口。
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

// nopRateLimiter 从不丢弃日志。
type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(delta float64) bool { return true }

func init() {
	l, p := newStdLogger()

	replaceLeveledLoggers(l)
	_globalL.Store(l)
	_globalP.Store(p)
	_globalS.Store(l.Sugar())

	_globalR.Store(nopRateLimiter{})
	configureRateLimiterFromEnv()
}

// InitLogger 按配置初始化 zap Logger，文件输出通过 lumberjack 滚动。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if len(cfg.File.Filename) > 0 {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout || len(outputs) == 0 {
		stdOut, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdOut)
	}
	debugCfg := *cfg
	debugCfg.Level = "debug"
	debugL, r, err := InitLoggerWithWriteSyncer(&debugCfg, zap.CombineWriteSyncers(outputs...), opts...)
	if err != nil {
		return nil, nil, err
	}
	replaceLeveledLoggers(debugL)
	level := zapcore.DebugLevel
	parsedLevel := cfg.Level
	if strings.EqualFold(parsedLevel, "trace") || parsedLevel == "" {
		parsedLevel = "debug"
	}
	if err := level.UnmarshalText([]byte(parsedLevel)); err != nil {
		return nil, nil, err
	}
	r.Level.SetLevel(level)
	return debugL.WithOptions(zap.AddCallerSkip(1)), r, nil
}

// InitTestLogger 为单元测试初始化 Logger，输出写入 t.Log。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	writer := newTestingWriter(t)
	zapOptions := []zap.Option{
		zap.ErrorOutput(writer.WithMarkFailed(true)),
	}
	opts = append(zapOptions, opts...)
	return InitLoggerWithWriteSyncer(cfg, writer, opts...)
}

// InitLoggerWithWriteSyncer 使用指定的 WriteSyncer 初始化 Logger。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("initLoggerWithWriteSyncer UnmarshalText cfg.Level err:%w", err)
	}
	core := zapcore.NewCore(cfg.encoder(), output, level)
	opts = append(cfg.buildOptions(output), opts...)
	lg := zap.New(core, opts...)
	r := &ZapProperties{
		Core:   core,
		Syncer: output,
		Level:  level,
	}
	return lg, r, nil
}

func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	logPath := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(logPath); err == nil && st.IsDir() {
		return nil, errors.New("can't use directory as log file name")
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultLogMaxSize
	}

	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

func newStdLogger() (*zap.Logger, *ZapProperties) {
	conf := &Config{Level: getenvDefault("GARDEN_LOG_LEVEL", "info"), Stdout: true}
	lg, r, _ := InitLogger(conf, zap.OnFatal(zapcore.WriteThenPanic))
	return lg, r
}

// L 返回全局 Logger，可通过 ReplaceGlobals 替换，并发安全。
func L() *zap.Logger {
	return _globalL.Load().(*zap.Logger)
}

// S 返回全局 SugaredLogger。
func S() *zap.SugaredLogger {
	return _globalS.Load().(*zap.SugaredLogger)
}

// R 返回全局限流器；未开启限流时返回永不丢弃的实现。
func R() RateLimiter {
	if rl, ok := _globalR.Load().(RateLimiter); ok && rl != nil {
		return rl
	}
	return nopRateLimiter{}
}

func ctxL() *zap.Logger {
	level := _globalP.Load().(*ZapProperties).Level.Level()
	l, ok := _globalLevelLogger.Load(level)
	if !ok {
		return L()
	}
	return l.(*zap.Logger)
}

// ReplaceGlobals 替换全局 Logger 与 SugaredLogger，并发安全。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalS.Store(logger.Sugar())
	_globalP.Store(props)
	replaceLeveledLoggers(logger)
}

func replaceLeveledLoggers(debugLogger *zap.Logger) {
	levels := []zapcore.Level{
		zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel,
		zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel,
	}
	for _, level := range levels {
		_globalLevelLogger.Store(level, debugLogger.WithOptions(zap.IncreaseLevel(level)))
	}
}

// Sync 刷新缓冲中的日志。
func Sync() error {
	if err := L().Sync(); err != nil {
		return err
	}
	return S().Sync()
}

func Level() zap.AtomicLevel {
	return _globalP.Load().(*ZapProperties).Level
}

// configureRateLimiterFromEnv 根据 GARDEN_LOG_RATE_* 环境变量配置全局限流器。
//
//   - GARDEN_LOG_RATE_ENABLE: "1"/"true" 开启，默认关闭。
//   - GARDEN_LOG_RATE_CREDIT_PER_SECOND: 默认 1.0。
//   - GARDEN_LOG_RATE_MAX_BALANCE: 默认 60.0。
func configureRateLimiterFromEnv() {
	if !getenvBool("GARDEN_LOG_RATE_ENABLE", false) {
		_globalR.Store(nopRateLimiter{})
		return
	}

	credit := getenvFloat("GARDEN_LOG_RATE_CREDIT_PER_SECOND", 1.0)
	maxBalance := getenvFloat("GARDEN_LOG_RATE_MAX_BALANCE", 60.0)
	_globalR.Store(utils.NewRateLimiter(credit, maxBalance))
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(getenvDefault(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(getenvDefault(key, ""), 64)
	if err != nil {
		return def
	}
	return f
}

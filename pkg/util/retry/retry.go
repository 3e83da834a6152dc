// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.


package retry

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

type config struct {
	attempts     uint
	sleep        time.Duration
	maxSleepTime time.Duration
	isRetryErr   func(err error) bool
}

func newDefaultConfig() *config {
	return &config{
		attempts:     10,
		sleep:        200 * time.Millisecond,
		maxSleepTime: 3 * time.Second,
	}
}

// Option 调整重试行为。
type Option func(*config)

// Attempts 为 0 表示不限次数，直到 ctx 结束。
func Attempts(n uint) Option {
	return func(c *config) { c.attempts = n }
}

// Sleep 首次重试前的等待时间，之后指数增长。
func Sleep(d time.Duration) Option {
	return func(c *config) {
		c.sleep = d
		if c.maxSleepTime < d {
			c.maxSleepTime = d
		}
	}
}

func MaxSleepTime(d time.Duration) Option {
	return func(c *config) {
		if d > c.sleep {
			c.maxSleepTime = d
		}
	}
}

// RetryErr 返回 false 的错误不再重试。
func RetryErr(fn func(err error) bool) Option {
	return func(c *config) { c.isRetryErr = fn }
}

func (c *config) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.sleep
	b.MaxInterval = c.maxSleepTime
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

// Do 重试执行 fn，直到成功、错误不可恢复、次数用尽或 ctx 结束。
// 返回最后一次失败的错误。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logger := log.Ctx(ctx)
	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	b := c.backoff()

	var lastErr error
	for i := uint(0); c.attempts == 0 || i < c.attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if i%4 == 0 {
			logger.Warn("retry func failed",
				zap.Uint("retried", i),
				zap.Error(err),
				zap.String("caller", getCaller(2)))
		}

		if !IsRecoverable(err) || (c.isRetryErr != nil && !c.isRetryErr(err)) {
			isContextErr := errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
			if isContextErr && lastErr != nil {
				return lastErr
			}
			return err
		}

		next := b.NextBackOff()
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < next {
			logger.Warn("retry func failed, deadline",
				zap.Uint("retried", i),
				zap.String("caller", getCaller(2)))
			return err
		}
		lastErr = err

		select {
		case <-time.After(next):
		case <-ctx.Done():
			return lastErr
		}
	}
	logger.Warn("retry func failed, reach max retry", zap.Uint("attempt", c.attempts))
	return lastErr
}

var errUnrecoverable = errors.New("unrecoverable error")

// Unrecoverable 标记错误不再重试。
func Unrecoverable(err error) error {
	return merr.Combine(err, errUnrecoverable)
}

// IsRecoverable 默认所有错误可恢复，除非被 Unrecoverable 包装。
func IsRecoverable(err error) bool {
	return !errors.Is(err, errUnrecoverable)
}

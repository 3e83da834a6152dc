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

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// 类型相关：运行时类型无法被序列化（chan / func / unsafe.Pointer 等）。
	ErrUnsupportedType = newSerialError("unsupported type", 100, false, WithErrorType(InputError))

	// 字节流相关
	ErrTruncatedStream = newSerialError("truncated stream", 200, false, WithErrorType(InputError))
	ErrStreamCorrupted = newSerialError("stream corrupted", 201, false, WithErrorType(InputError))

	// 仓库相关
	ErrUnknownType = newSerialError("unknown type", 300, false, WithErrorType(InputError))
	ErrUIDConflict = newSerialError("type uid conflict", 301, false)

	// 结构演进相关：同名字段类型不兼容且没有注册转换器。
	ErrEvolution = newSerialError("incompatible schema evolution", 400, false, WithErrorType(InputError))

	// 代码生成校验失败，仅作为告警使用，调用方不会收到该错误。
	ErrGenerationVerification = newSerialError("generated serializer verification failed", 500, false)

	// 快照相关
	ErrSnapshotVersion = newSerialError("snapshot version not supported", 600, false, WithErrorType(InputError))

	// IO related
	ErrIoFailed = newSerialError("IO failed", 1001, true)

	// Parameter related
	ErrParameterInvalid  = newSerialError("invalid parameter", 1100, false, WithErrorType(InputError))
	ErrParameterMissing  = newSerialError("missing parameter", 1101, false, WithErrorType(InputError))
	ErrParameterTooLarge = newSerialError("parameter too large", 1102, false, WithErrorType(InputError))

	// General
	ErrOperationNotSupported = newSerialError("unsupported operation", 3000, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to serialError
	errUnexpected = newSerialError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*serialError)

func WithDetail(detail string) errorOption {
	return func(err *serialError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *serialError) {
		err.errType = etype
	}
}

type serialError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newSerialError(msg string, code int32, retriable bool, options ...errorOption) serialError {
	err := serialError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e serialError) code() int32 {
	return e.errCode
}

func (e serialError) Error() string {
	return e.msg
}

func (e serialError) Detail() string {
	return e.detail
}

func (e serialError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(serialError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// 多个错误时以最后一个作为 cause
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}

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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

const InputErrorFlagKey string = "is_input_error"

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case serialError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(serialError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// GetErrorType 返回错误的分类；非 serialError 一律视为系统错误。
func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(serialError); ok {
		return merr.errType
	}
	return SystemError
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(serialError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

// WrapErrUnsupportedType 类型无法被序列化。
func WrapErrUnsupportedType(typeName string, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrUnsupportedType, reason, value("type", typeName))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrTruncatedStream 读取时字节流提前结束。
func WrapErrTruncatedStream(offset int64, need int, msg ...string) error {
	err := wrapFields(ErrTruncatedStream,
		value("offset", offset),
		value("need", need),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrStreamCorrupted(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrStreamCorrupted, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrUnknownType 流中出现本地未知且未携带描述符的类型标识。
func WrapErrUnknownType(uid any, msg ...string) error {
	err := wrapFields(ErrUnknownType, value("uid", uid))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUIDConflict(uid any, existing, incoming string, msg ...string) error {
	err := wrapFields(ErrUIDConflict,
		value("uid", uid),
		value("existing", existing),
		value("incoming", incoming),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrEvolution 同名字段的存储类型与运行时类型不兼容。
func WrapErrEvolution(typeName, field, stored, local string, msg ...string) error {
	err := wrapFields(ErrEvolution,
		value("type", typeName),
		value("field", field),
		value("stored", stored),
		value("local", local),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrGenerationVerification(typeName, strategy, reason string) error {
	return wrapFieldsWithDesc(ErrGenerationVerification, reason,
		value("type", typeName),
		value("strategy", strategy),
	)
}

func WrapErrSnapshotVersion(got, want string) error {
	return wrapFields(ErrSnapshotVersion, value("got", got), value("want", want))
}

func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidRange[T any](lower, upper, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		bound("value", actual, lower, upper),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing(param string, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterTooLarge(name string, size, limit int, msg ...string) error {
	err := wrapFields(ErrParameterTooLarge, bound(name, size, 0, limit))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrOperationNotSupported(op string, msg ...string) error {
	err := wrapFields(ErrOperationNotSupported, value("operation", op))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err serialError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err serialError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}

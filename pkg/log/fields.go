package log

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameUID       = "uid"
	FieldNameType      = "type"
	FieldNameStrategy  = "strategy"
	FieldNameSession   = "session"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldUID 类型标识以十六进制输出，便于和快照、调试输出对照。
func FieldUID(uid uint64) zap.Field {
	return zap.String(FieldNameUID, fmt.Sprintf("%#016x", uid))
}

func FieldType(name string) zap.Field {
	return zap.String(FieldNameType, name)
}

func FieldStrategy(strategy fmt.Stringer) zap.Field {
	return zap.Stringer(FieldNameStrategy, strategy)
}

func FieldSession(id string) zap.Field {
	return zap.String(FieldNameSession, id)
}

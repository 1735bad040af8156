// Package errors 定义模型声明、关联解析与数据访问共用的错误代码及 AppError。
package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeDuplicate    ErrorCode = "DUPLICATE_ERROR"

	// 模型声明期错误：关联缺少反向名、目标模型未声明、主外键类型不一致等。
	// 必须在任何查询执行之前暴露。
	ErrCodeDefinition ErrorCode = "DEFINITION_ERROR"

	// 查询期路径解析错误：请求的关联名在当前模型上不存在。
	ErrCodeRelationNotFound ErrorCode = "RELATION_NOT_FOUND"

	// 别名注册表内部不变量被破坏（重复令牌、键冲突），属于内部缺陷。
	ErrCodeAliasConflict ErrorCode = "ALIAS_CONFLICT"

	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// Fatal 报告该代码是否意味着进程内的模型或别名状态不可继续使用。
// 声明期错误与别名冲突属于此类；查询期错误由调用方自行处理。
func (c ErrorCode) Fatal() bool {
	return c == ErrCodeDefinition || c == ErrCodeAliasConflict || c == ErrCodeInternal
}

// IError 错误接口
type IError interface {
	error
	Code() ErrorCode
	Message() string
	Cause() error
	// Details 返回附加的上下文（模型名、关联路径、别名键等）
	Details() map[string]any
	WithContext(key string, value any) IError
}

// AppError 携带错误代码与上下文的错误
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{code: code, message: message}
}

// NewErrorf 使用格式化消息创建新错误
func NewErrorf(code ErrorCode, format string, args ...any) IError {
	return &AppError{code: code, message: fmt.Sprintf(format, args...)}
}

// WrapError 以新的代码包装 err；err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, cause: err}
}

// Error 格式为 "[CODE] message {k=v ...}: cause"，上下文键按字典序输出
func (e *AppError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.code, e.message)
	if len(e.details) > 0 {
		sb.WriteString(" {")
		for i, k := range slices.Sorted(maps.Keys(e.details)) {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.details[k])
		}
		sb.WriteByte('}')
	}
	if e.cause != nil {
		fmt.Fprintf(&sb, ": %v", e.cause)
	}
	return sb.String()
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }

// Details 返回上下文的副本
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		return map[string]any{}
	}
	return maps.Clone(e.details)
}

// Is 按错误代码匹配，其余情况交给原因链
func (e *AppError) Is(target error) bool {
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	return false
}

// Unwrap 支持 errors.Is / errors.As 沿原因链查找
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithContext 返回附加了 key=value 的新错误，原错误不变
func (e *AppError) WithContext(key string, value any) IError {
	c := *e
	c.details = maps.Clone(e.details)
	if c.details == nil {
		c.details = make(map[string]any, 1)
	}
	c.details[key] = value
	return &c
}

// 预定义错误变量，可用于 errors.Is 按代码匹配
var (
	ErrInternal         = NewError(ErrCodeInternal, "内部错误")
	ErrInvalidInput     = NewError(ErrCodeInvalidInput, "无效的输入参数")
	ErrNotFound         = NewError(ErrCodeNotFound, "资源未找到")
	ErrDuplicate        = NewError(ErrCodeDuplicate, "数据重复")
	ErrDefinition       = NewError(ErrCodeDefinition, "模型定义错误")
	ErrRelationNotFound = NewError(ErrCodeRelationNotFound, "关联不存在")
	ErrAliasConflict    = NewError(ErrCodeAliasConflict, "别名冲突")
	ErrDatabase         = NewError(ErrCodeDatabase, "数据库错误")
)

func IsNotFound(err error) bool         { return IsErrorCode(err, ErrCodeNotFound) }
func IsDuplicate(err error) bool        { return IsErrorCode(err, ErrCodeDuplicate) }
func IsDefinition(err error) bool       { return IsErrorCode(err, ErrCodeDefinition) }
func IsRelationNotFound(err error) bool { return IsErrorCode(err, ErrCodeRelationNotFound) }
func IsAliasConflict(err error) bool    { return IsErrorCode(err, ErrCodeAliasConflict) }

// IsFatal 判断错误是否属于声明期或内部不变量错误
func IsFatal(err error) bool {
	return err != nil && GetErrorCode(err).Fatal()
}

// IsErrorCode 检查最外层 AppError 的代码
func IsErrorCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}
	return false
}

// GetErrorCode 获取错误代码；非 AppError 视为 ErrCodeInternal
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

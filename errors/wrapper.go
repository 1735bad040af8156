package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"runtime"

	"joinery/logging"
)

// WrapWithLog 包装错误并以 Warn 级别记录调用位置；日志写入 logging.FromContext(ctx)
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	logging.FromContext(ctx).Warn(ctx, msg, append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)...)

	return WrapError(err, code, msg)
}

// WrapDatabaseError 将驱动返回的错误归类：
//   - 已是 AppError 的原样返回；
//   - sql.ErrNoRows 归为 NOT_FOUND，不记日志；
//   - 其余（含 ctx 取消）归为 DATABASE_ERROR 并记录警告。
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return err
	}
	if stdErrors.Is(err, sql.ErrNoRows) {
		return WrapError(err, ErrCodeNotFound, operation).WithContext("operation", operation)
	}

	msg := "数据库操作失败: " + operation
	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		msg = "数据库操作被取消: " + operation
	}
	return WrapWithLog(ctx, err, ErrCodeDatabase, msg, logging.String("operation", operation))
}

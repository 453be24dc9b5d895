package model

import "fmt"

// QuitError 单账号级致命信号：收到后该账号的绘制循环停止，不影响其他账号。
// 与普通错误（外层退避重试）严格区分，调度器用 errors.As 匹配。
type QuitError struct {
	Reason string
}

func (e *QuitError) Error() string { return "should quit: " + e.Reason }

// Quitf 构造 QuitError
func Quitf(format string, args ...any) *QuitError {
	return &QuitError{Reason: fmt.Sprintf(format, args...)}
}

// FetchError 网络抓取失败（瞬时，可重试）
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return "fetch " + e.Op + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

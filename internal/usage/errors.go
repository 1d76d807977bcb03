package usage

import (
	"errors"
	"fmt"
)

// ErrBudgetExhausted 预算耗尽，不视为失败：运行会以截断的结果正常结束
var ErrBudgetExhausted = errors.New("token 预算已耗尽")

// ExhaustedError 携带耗尽时的用量
type ExhaustedError struct {
	Used  int64
	Limit int64
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: 已用 %d tokens, 上限 %d tokens", ErrBudgetExhausted, e.Used, e.Limit)
}

func (e *ExhaustedError) Unwrap() error {
	return ErrBudgetExhausted
}

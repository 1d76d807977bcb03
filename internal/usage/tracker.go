package usage

import (
	"sync"
)

// Usage 单次模型调用的 token 用量
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Total 返回本次调用的总 token 数
func (u Usage) Total() int64 {
	return u.PromptTokens + u.CompletionTokens
}

// Pricing 模型单价（美元/token）
type Pricing struct {
	PromptPerToken     float64
	CompletionPerToken float64
}

// Cost 估算一次调用的费用
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.PromptTokens)*p.PromptPerToken + float64(u.CompletionTokens)*p.CompletionPerToken
}

// Stats 一次运行内累计的用量，单调不减
type Stats struct {
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	TotalTokens      int64   `json:"totalTokens"`
	Calls            int     `json:"calls"`
	CostUSD          float64 `json:"costUsd"`
}

// Budget token 预算，nil 表示不限
type Budget struct {
	MaxTokens int64
}

// Observer 接收每次调用的用量，例如写入监控指标
type Observer interface {
	ObserveCall(u Usage, cost float64)
}

// Tracker 累计用量并判断预算是否耗尽
//
// 预算在记录用量之后检查：已发出的调用总会完成并计费，耗尽信号由下一次调用触发。
type Tracker struct {
	mu       sync.Mutex
	stats    Stats
	budget   *Budget
	pricing  Pricing
	observer Observer
}

// NewTracker 创建用量追踪器，budget 为 nil 或 MaxTokens<=0 时不限预算
func NewTracker(budget *Budget, pricing Pricing) *Tracker {
	t := &Tracker{pricing: pricing}
	t.SetBudget(budget)
	return t
}

// WithObserver 设置用量观察者
func (t *Tracker) WithObserver(o Observer) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = o
	return t
}

// SetBudget 替换预算
func (t *Tracker) SetBudget(budget *Budget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if budget == nil || budget.MaxTokens <= 0 {
		t.budget = nil
		return
	}
	b := *budget
	t.budget = &b
}

// Record 累计一次调用的用量
func (t *Tracker) Record(u Usage) {
	cost := t.pricing.Cost(u)

	t.mu.Lock()
	t.stats.PromptTokens += u.PromptTokens
	t.stats.CompletionTokens += u.CompletionTokens
	t.stats.TotalTokens += u.Total()
	t.stats.Calls++
	t.stats.CostUSD += cost
	observer := t.observer
	t.mu.Unlock()

	if observer != nil {
		observer.ObserveCall(u, cost)
	}
}

// Remaining 返回剩余 token 数；不限预算时 ok 为 false
func (t *Tracker) Remaining() (remaining int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.budget == nil {
		return 0, false
	}
	remaining = t.budget.MaxTokens - t.stats.TotalTokens
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Exhausted 判断预算是否已耗尽
func (t *Tracker) Exhausted() bool {
	remaining, ok := t.Remaining()
	return ok && remaining == 0
}

// Check 预算耗尽时返回 ErrBudgetExhausted
func (t *Tracker) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.budget == nil || t.stats.TotalTokens < t.budget.MaxTokens {
		return nil
	}
	return &ExhaustedError{Used: t.stats.TotalTokens, Limit: t.budget.MaxTokens}
}

// Stats 返回当前累计用量
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Reset 清零用量，预算保持不变
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Stats{}
}

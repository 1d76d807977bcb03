package usage

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls int
	cost  float64
}

func (o *recordingObserver) ObserveCall(u Usage, cost float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.cost += cost
}

func TestTracker_RecordAccumulates(t *testing.T) {
	obs := &recordingObserver{}
	tracker := NewTracker(nil, Pricing{PromptPerToken: 0.001, CompletionPerToken: 0.002}).WithObserver(obs)

	tracker.Record(Usage{PromptTokens: 100, CompletionTokens: 50})
	tracker.Record(Usage{PromptTokens: 10, CompletionTokens: 5})

	stats := tracker.Stats()
	assert.Equal(t, int64(110), stats.PromptTokens)
	assert.Equal(t, int64(55), stats.CompletionTokens)
	assert.Equal(t, int64(165), stats.TotalTokens)
	assert.Equal(t, 2, stats.Calls)
	assert.InDelta(t, 0.22, stats.CostUSD, 1e-9)
	assert.Equal(t, 2, obs.calls)
	assert.InDelta(t, 0.22, obs.cost, 1e-9)
}

func TestUsage_TotalLargeCounts(t *testing.T) {
	u := Usage{PromptTokens: 3_000_000_000, CompletionTokens: 1}
	assert.Equal(t, int64(3_000_000_001), u.Total())

	tracker := NewTracker(nil, Pricing{})
	tracker.Record(u)
	assert.Equal(t, u.Total(), tracker.Stats().TotalTokens)
}

func TestTracker_UnlimitedBudget(t *testing.T) {
	tracker := NewTracker(&Budget{MaxTokens: 0}, Pricing{})
	tracker.Record(Usage{PromptTokens: 1 << 20})

	_, ok := tracker.Remaining()
	assert.False(t, ok)
	assert.False(t, tracker.Exhausted())
	assert.NoError(t, tracker.Check())
}

func TestTracker_LateEnforcement(t *testing.T) {
	tracker := NewTracker(&Budget{MaxTokens: 100}, Pricing{})

	// 调用前检查通过
	require.NoError(t, tracker.Check())
	tracker.Record(Usage{PromptTokens: 60})
	remaining, ok := tracker.Remaining()
	assert.True(t, ok)
	assert.Equal(t, int64(40), remaining)
	require.NoError(t, tracker.Check())

	// 已发出的调用超出预算也会被完整计费
	tracker.Record(Usage{PromptTokens: 70})
	assert.Equal(t, int64(130), tracker.Stats().TotalTokens)
	remaining, _ = tracker.Remaining()
	assert.Equal(t, int64(0), remaining)
	assert.True(t, tracker.Exhausted())

	// 下一次调用才收到耗尽信号
	err := tracker.Check()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExhausted))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, int64(130), exhausted.Used)
	assert.Equal(t, int64(100), exhausted.Limit)
}

func TestTracker_ExactBudgetIsExhausted(t *testing.T) {
	tracker := NewTracker(&Budget{MaxTokens: 100}, Pricing{})
	tracker.Record(Usage{PromptTokens: 50, CompletionTokens: 50})
	assert.True(t, tracker.Exhausted())
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tracker := NewTracker(&Budget{MaxTokens: 1_000_000}, Pricing{PromptPerToken: 1})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				tracker.Record(Usage{PromptTokens: 3, CompletionTokens: 2})
			}
		}()
	}
	wg.Wait()

	stats := tracker.Stats()
	assert.Equal(t, 1000, stats.Calls)
	assert.Equal(t, int64(5000), stats.TotalTokens)
	assert.InDelta(t, 3000.0, stats.CostUSD, 1e-6)
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker(&Budget{MaxTokens: 10}, Pricing{})
	tracker.Record(Usage{PromptTokens: 20})
	require.True(t, tracker.Exhausted())

	tracker.Reset()
	assert.Equal(t, Stats{}, tracker.Stats())
	assert.False(t, tracker.Exhausted())
}

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fachebot/ai-news-digest/internal/logger"
	"github.com/fachebot/ai-news-digest/internal/usage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 模型调用与报告生成的 Prometheus 指标
type Metrics struct {
	registry *prometheus.Registry
	calls    prometheus.Counter
	tokens   *prometheus.CounterVec
	cost     prometheus.Counter
	runs     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "digest_llm_calls_total",
			Help: "Number of completed LLM calls.",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_llm_tokens_total",
			Help: "LLM tokens consumed, by kind (prompt or completion).",
		}, []string{"kind"}),
		cost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "digest_llm_cost_usd_total",
			Help: "Estimated LLM cost in USD.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_runs_total",
			Help: "Report generation runs, by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	m.registry.MustRegister(m.calls, m.tokens, m.cost, m.runs)
	return m
}

// ObserveCall 记录一次模型调用
func (m *Metrics) ObserveCall(u usage.Usage, cost float64) {
	m.calls.Inc()
	m.tokens.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	m.tokens.WithLabelValues("completion").Add(float64(u.CompletionTokens))
	if cost > 0 {
		m.cost.Add(cost)
	}
}

// ObserveRun 记录一次报告生成的结果
func (m *Metrics) ObserveRun(kind, outcome string) {
	m.runs.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在 listen 上暴露 /metrics，ctx 取消后关闭
func (m *Metrics) Serve(ctx context.Context, listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infof("[Metrics] 指标服务监听 %s", listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package service

import (
	"context"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/prometheus"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
)

// DispatchMetrics 派发链路指标。方法对 nil 接收者安全，未启用 prometheus 时直接跳过。
type DispatchMetrics struct {
	*core.BaseComponent
	Prom *prometheus.Component `infra:"dep:prometheus"`

	queued    *prom.CounterVec
	acquired  *prom.CounterVec
	responses *prom.CounterVec
	aborts    *prom.CounterVec
	syncWait  *prom.HistogramVec
	reaped    *prom.CounterVec
	delegates *prom.GaugeVec
}

func NewDispatchMetrics() *DispatchMetrics {
	return &DispatchMetrics{BaseComponent: core.NewBaseComponent(consts.COMP_SVC_METRICS)}
}

func (m *DispatchMetrics) Start(ctx context.Context) error {
	if err := m.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if m.queued != nil {
		return nil
	}
	m.queued = m.Prom.NewCounter("delegate_tasks_submitted_total", "Tasks submitted by mode and type", []string{"mode", "task_type"})
	m.acquired = m.Prom.NewCounter("delegate_task_acquisitions_total", "Acquisition attempts by path and outcome", []string{"path", "outcome"})
	m.responses = m.Prom.NewCounter("delegate_task_responses_total", "Delegate responses by correlation path", []string{"path"})
	m.aborts = m.Prom.NewCounter("delegate_task_aborts_total", "Abort requests by outcome", []string{"outcome"})
	m.syncWait = m.Prom.NewHistogram("delegate_sync_wait_seconds", "Time callers wait on synchronous execution", []string{"outcome"},
		[]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30})
	m.reaped = m.Prom.NewCounter("delegate_tasks_reaped_total", "Started tasks expired by the reaper", nil)
	m.delegates = m.Prom.NewGauge("delegate_disconnected_marked", "Delegates marked disconnected in the last heartbeat sweep", nil)
	return nil
}

func (m *DispatchMetrics) enabled() bool { return m != nil && m.queued != nil }

func (m *DispatchMetrics) Submitted(mode string, taskType consts.TaskType) {
	if m.enabled() {
		m.queued.WithLabelValues(mode, string(taskType)).Inc()
	}
}

func (m *DispatchMetrics) Acquisition(path string, won bool) {
	if !m.enabled() {
		return
	}
	outcome := "lost"
	if won {
		outcome = "won"
	}
	m.acquired.WithLabelValues(path, outcome).Inc()
}

func (m *DispatchMetrics) Response(path string) {
	if m.enabled() {
		m.responses.WithLabelValues(path).Inc()
	}
}

func (m *DispatchMetrics) Abort(outcome string) {
	if m.enabled() {
		m.aborts.WithLabelValues(outcome).Inc()
	}
}

func (m *DispatchMetrics) SyncWait(outcome string, d time.Duration) {
	if m.enabled() {
		m.syncWait.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

func (m *DispatchMetrics) Reaped(n int) {
	if m.enabled() {
		m.reaped.WithLabelValues().Add(float64(n))
	}
}

func (m *DispatchMetrics) Disconnected(n int64) {
	if m.enabled() {
		m.delegates.WithLabelValues().Set(float64(n))
	}
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
)

// HeartbeatMonitor 定期把心跳超过 deadAfter 的 delegate 标记为断开
type HeartbeatMonitor struct {
	*core.BaseComponent
	DelegateDao dao.DelegateDao  `infra:"dep:delegate_dao"`
	Metrics     *DispatchMetrics `infra:"dep:dispatch_metrics?"`
	deadAfter   time.Duration
	interval    time.Duration
	cancel      context.CancelFunc
	now         func() time.Time
}

func NewHeartbeatMonitor(deadAfter, interval time.Duration) *HeartbeatMonitor {
	if deadAfter <= 0 {
		deadAfter = 2 * time.Minute
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HeartbeatMonitor{
		BaseComponent: core.NewBaseComponent(consts.COMP_SVC_HEARTBEAT_MONITOR),
		deadAfter:     deadAfter,
		interval:      interval,
		now:           time.Now,
	}
}

func (h *HeartbeatMonitor) Start(ctx context.Context) error {
	if h.IsActive() {
		return nil
	}
	if err := h.BaseComponent.Start(ctx); err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.loop(loopCtx)
	return nil
}

func (h *HeartbeatMonitor) Stop(ctx context.Context) error {
	if !h.IsActive() {
		return nil
	}
	if h.cancel != nil {
		h.cancel()
	}
	return h.BaseComponent.Stop(ctx)
}

func (h *HeartbeatMonitor) loop(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.scan(ctx)
		}
	}
}

func (h *HeartbeatMonitor) scan(ctx context.Context) int64 {
	cutoff := h.now().Add(-h.deadAfter).UnixMilli()
	n, err := h.DelegateDao.MarkDisconnected(ctx, cutoff)
	if err != nil {
		logging.Error(ctx, "heartbeat monitor mark disconnected failed", zap.Error(err))
		return 0
	}
	h.Metrics.Disconnected(n)
	if n > 0 {
		logging.Info(ctx, "delegates marked disconnected", zap.Int64("count", n))
	}
	return n
}

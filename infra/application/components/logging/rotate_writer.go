package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	dailyLayout    = "20060102"
	intervalLayout = "20060102150405"
)

// intervalWriter 按固定时间间隔切换文件：<base>.log.<stamp>，间隔 >=24h 时 stamp 为日期。
type intervalWriter struct {
	mu       sync.Mutex
	dir      string
	base     string
	cfg      *RotateConfig
	file     *os.File
	openedAt time.Time
	now      func() time.Time
}

func newIntervalWriter(dir, base string, rc *RotateConfig) (*intervalWriter, error) {
	if rc == nil || rc.RotateInterval <= 0 {
		return nil, fmt.Errorf("invalid rotate interval")
	}
	w := &intervalWriter{dir: dir, base: base, cfg: rc, now: time.Now}
	if err := w.rotateLocked(w.now()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *intervalWriter) layout() string {
	if w.cfg.RotateInterval >= 24*time.Hour {
		return dailyLayout
	}
	return intervalLayout
}

func (w *intervalWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	if now.Sub(w.openedAt) >= w.cfg.RotateInterval {
		if err := w.rotateLocked(now); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

func (w *intervalWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *intervalWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *intervalWriter) rotateLocked(now time.Time) error {
	if w.file != nil {
		_ = w.file.Sync()
		_ = w.file.Close()
	}
	name := fmt.Sprintf("%s.log.%s", w.base, now.Format(w.layout()))
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open rotated log file: %w", err)
	}
	w.file = f
	w.openedAt = now
	if w.cfg.CleanupEnabled && w.cfg.MaxAge > 0 {
		w.cleanupLocked(now.Add(-w.cfg.MaxAge))
	}
	return nil
}

// cleanupLocked 删除 stamp 早于 cutoff 的历史文件
func (w *intervalWriter) cleanupLocked(cutoff time.Time) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	prefix := w.base + ".log."
	for _, e := range entries {
		stamp, ok := strings.CutPrefix(e.Name(), prefix)
		if !ok {
			continue
		}
		var layout string
		switch len(stamp) {
		case len(dailyLayout):
			layout = dailyLayout
		case len(intervalLayout):
			layout = intervalLayout
		default:
			continue
		}
		ts, err := time.ParseInLocation(layout, stamp, cutoff.Location())
		if err != nil || !ts.Before(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(w.dir, e.Name()))
	}
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

func newTestDelegateService() (*DelegateService, *countingDelegateDao, *touchRecorder) {
	s := NewDelegateService("", "")
	dd := &countingDelegateDao{MemoryDelegateDao: dao.NewMemoryDelegateDao()}
	td := &touchRecorder{MemoryTaskDao: dao.NewMemoryTaskDao()}
	s.DelegateDao = dd
	s.TaskDao = td
	s.newID = sequentialIDs()
	return s, dd, td
}

func TestRegisterTwicePreservesDisabled(t *testing.T) {
	ctx := context.Background()
	s, dd, _ := newTestDelegateService()

	first, err := s.Register(ctx, &model.Delegate{AccountID: "A", IP: "10.0.0.5", HostName: "box", Status: consts.DELEGATE_DISABLED})
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	second, err := s.Register(ctx, &model.Delegate{AccountID: "A", IP: "10.0.0.5", HostName: "box", Status: consts.DELEGATE_ENABLED})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if dd.creates != 1 || dd.updates != 1 {
		t.Fatalf("creates=%d updates=%d, want 1/1", dd.creates, dd.updates)
	}
	if second.ID != first.ID {
		t.Fatalf("second registration got new id %s != %s", second.ID, first.ID)
	}
	if second.Status != consts.DELEGATE_DISABLED {
		t.Fatalf("disabled flag overwritten: %s", second.Status)
	}
}

func TestRegisterDifferentHostCreates(t *testing.T) {
	ctx := context.Background()
	s, dd, _ := newTestDelegateService()
	_, _ = s.Register(ctx, &model.Delegate{AccountID: "A", IP: "10.0.0.5", HostName: "box"})
	d, _ := s.Register(ctx, &model.Delegate{AccountID: "A", IP: "10.0.0.6", HostName: "box"})
	if dd.creates != 2 {
		t.Fatalf("creates=%d, want 2", dd.creates)
	}
	if d.Status != consts.DELEGATE_ENABLED || !d.Connected {
		t.Fatalf("new delegate should be enabled and connected: %+v", d)
	}
}

func TestHeartbeatTouchesExecutingTasks(t *testing.T) {
	ctx := context.Background()
	s, _, td := newTestDelegateService()
	d, _ := s.Add(ctx, &model.Delegate{AccountID: "A", HostName: "box"})

	updated, err := s.Heartbeat(ctx, "A", d.ID, []string{"t1", "t2"})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !updated.Connected || updated.LastHeartbeat == 0 {
		t.Fatalf("heartbeat not recorded: %+v", updated)
	}
	if td.delegateID != d.ID || len(td.ids) != 2 {
		t.Fatalf("touch not issued: delegate=%q ids=%v", td.delegateID, td.ids)
	}

	td.ids = nil
	_, _ = s.Heartbeat(ctx, "A", d.ID, nil)
	if td.ids != nil {
		t.Fatalf("touch issued without executing tasks")
	}
}

func TestUpdateUnknownDelegate(t *testing.T) {
	s, _, _ := newTestDelegateService()
	_, err := s.Update(context.Background(), &model.Delegate{AccountID: "A", ID: "nope"})
	if !IsCode(err, ERR_DELEGATE_NOT_FOUND) {
		t.Fatalf("expected DELEGATE_NOT_FOUND, got %v", err)
	}
}

func TestCheckForUpgrade(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestDelegateService()
	s.metadataURL = "http://meta.local/delegate.txt"
	d, _ := s.Add(ctx, &model.Delegate{AccountID: "A", HostName: "box", Version: "1.0.0"})

	s.fetcher = &fakeDoer{body: "1.2.0 build-77\n"}
	got, err := s.CheckForUpgrade(ctx, "A", d.ID, "1.0.0")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !got.DoUpgrade || got.Version != "1.2.0" {
		t.Fatalf("expected upgrade to 1.2.0, got %+v", got)
	}

	got, _ = s.CheckForUpgrade(ctx, "A", d.ID, "1.2.0")
	if got.DoUpgrade {
		t.Fatalf("same version should not upgrade")
	}

	s.fetcher = &fakeDoer{err: errors.New("unreachable")}
	got, _ = s.CheckForUpgrade(ctx, "A", d.ID, "1.0.0")
	if got.DoUpgrade {
		t.Fatalf("fetch failure falls back to 0.0.0 and must not upgrade")
	}

	if _, err := s.CheckForUpgrade(ctx, "A", d.ID, "not-a-version"); !IsCode(err, ERR_INVALID_REQUEST) {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
	if _, err := s.CheckForUpgrade(ctx, "A", "missing", "1.0.0"); !IsCode(err, ERR_DELEGATE_NOT_FOUND) {
		t.Fatalf("expected DELEGATE_NOT_FOUND, got %v", err)
	}
}

func TestHeartbeatMonitorMarksStale(t *testing.T) {
	ctx := context.Background()
	dd := dao.NewMemoryDelegateDao()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = dd.Create(ctx, &model.Delegate{ID: "stale", AccountID: "A", Connected: true, LastHeartbeat: now.Add(-5 * time.Minute).UnixMilli()})
	_ = dd.Create(ctx, &model.Delegate{ID: "fresh", AccountID: "A", Connected: true, LastHeartbeat: now.Add(-10 * time.Second).UnixMilli()})

	m := NewHeartbeatMonitor(2*time.Minute, time.Minute)
	m.DelegateDao = dd
	m.now = func() time.Time { return now }
	if n := m.scan(ctx); n != 1 {
		t.Fatalf("marked %d, want 1", n)
	}
	stale, _ := dd.Get(ctx, "A", "stale")
	fresh, _ := dd.Get(ctx, "A", "fresh")
	if stale.Connected || !fresh.Connected {
		t.Fatalf("stale=%v fresh=%v", stale.Connected, fresh.Connected)
	}
}

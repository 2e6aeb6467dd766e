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

func TestTaskReaperExpiresStartedTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestDispatch(t, time.Second)

	withWait := echoTask("A")
	withWait.WaitID = "wait-x"
	waitID, _ := s.QueueTask(ctx, withWait)
	_, _ = s.AcquireTask(ctx, "A", "W1", waitID)
	_, _ = s.StartTask(ctx, "A", "W1", waitID)

	plain := echoTask("A")
	plain.ID = "plain"
	plain.Status = consts.TASK_STARTED
	plain.DelegateID = "W1"
	_ = s.TaskDao.Create(ctx, plain)

	queued, _ := s.QueueTask(ctx, echoTask("A"))

	r := NewTaskReaper(10*time.Minute, time.Minute, 10)
	r.TaskDao = s.TaskDao
	r.Notify = s.Notify
	r.now = func() time.Time { return time.Now().Add(time.Hour) }

	if n := r.scan(ctx); n != 2 {
		t.Fatalf("reaped %d, want 2", n)
	}
	data, ok := s.Notify.Result("wait-x")
	if !ok || data.Kind != model.RESPONSE_ERROR {
		t.Fatalf("wait id not notified with error: %+v ok=%v", data, ok)
	}
	if _, err := s.GetTask(ctx, "A", waitID); !errors.Is(err, dao.ErrNotFound) {
		t.Fatalf("notified task should be deleted, got %v", err)
	}
	got, _ := s.GetTask(ctx, "A", "plain")
	if got.Status != consts.TASK_FAILURE {
		t.Fatalf("plain task status %s", got.Status)
	}
	q, _ := s.GetTask(ctx, "A", queued)
	if q.Status != consts.TASK_QUEUED {
		t.Fatalf("queued task touched by reaper: %s", q.Status)
	}
}

func TestLateResponseAfterReapKeepsReaperResult(t *testing.T) {
	ctx := context.Background()
	s := newTestDispatch(t, time.Second)
	id, _ := s.QueueTask(ctx, echoTask("A"))
	claimed, _ := s.AcquireTask(ctx, "A", "W1", id)
	if started, _ := s.StartTask(ctx, "A", "W1", id); started == nil {
		t.Fatalf("start failed")
	}

	r := NewTaskReaper(10*time.Minute, time.Minute, 10)
	r.TaskDao = s.TaskDao
	r.Notify = s.Notify
	r.now = func() time.Time { return time.Now().Add(time.Hour) }
	if n := r.scan(ctx); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}

	var late []model.ResponseData
	s.Notify.WaitFor(id, func(_ string, data model.ResponseData) { late = append(late, data) })
	if len(late) != 1 || late[0].Kind != model.RESPONSE_ERROR {
		t.Fatalf("reaper result not delivered: %+v", late)
	}

	err := s.ProcessResponse(ctx, &model.DelegateTaskResponse{
		AccountID: "A",
		Task:      claimed.Ref(),
		Response:  model.EchoResponse("too late"),
	})
	if err != nil {
		t.Fatalf("late response: %v", err)
	}
	data, ok := s.Notify.Result(id)
	if !ok || data.Kind != model.RESPONSE_ERROR {
		t.Fatalf("wait id result overwritten: %+v ok=%v", data, ok)
	}
	if len(late) != 1 {
		t.Fatalf("wait id notified %d times", len(late))
	}
}

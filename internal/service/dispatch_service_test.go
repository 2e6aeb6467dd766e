package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

func TestConcurrentAcquireExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestDispatch(t, time.Second)
	id, err := s.QueueTask(ctx, echoTask("A"))
	if err != nil {
		t.Fatalf("queue: %v", err)
	}

	results := map[string]*model.DelegateTask{}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, w := range []string{"W1", "W2"} {
		wg.Add(1)
		go func(w string) {
			defer wg.Done()
			got, err := s.AcquireTask(ctx, "A", w, id)
			if err != nil {
				t.Errorf("acquire %s: %v", w, err)
			}
			mu.Lock()
			results[w] = got
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	var winner string
	for w, got := range results {
		if got != nil {
			if winner != "" {
				t.Fatalf("both workers acquired the task")
			}
			winner = w
		}
	}
	if winner == "" {
		t.Fatalf("no worker acquired the task")
	}
	stored, _ := s.GetTask(ctx, "A", id)
	if stored.DelegateID != winner {
		t.Fatalf("delegate_id=%q winner=%q", stored.DelegateID, winner)
	}
}

func TestQueueThenAbortBeforeClaim(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestDispatch(t, time.Second)
	sub, _ := s.Broadcaster.Subscribe(ctx, "A")

	id, _ := s.QueueTask(ctx, echoTask("A"))
	<-sub.C() // NEW_TASK

	if err := s.AbortTask(ctx, "A", id); err != nil {
		t.Fatalf("abort: %v", err)
	}
	got, _ := s.GetTask(ctx, "A", id)
	if got.Status != consts.TASK_ABORTED || got.DelegateID != "" {
		t.Fatalf("unexpected task after abort %+v", got)
	}
	select {
	case ev := <-sub.C():
		t.Fatalf("abort before claim must not broadcast, got %+v", ev)
	default:
	}
	if claimed, _ := s.AcquireTask(ctx, "A", "W1", id); claimed != nil {
		t.Fatalf("aborted task acquired")
	}
}

func TestAbortAfterStartBroadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestDispatch(t, time.Second)
	id, _ := s.QueueTask(ctx, echoTask("A"))
	_, _ = s.AcquireTask(ctx, "A", "W1", id)
	if started, _ := s.StartTask(ctx, "A", "W1", id); started == nil {
		t.Fatalf("start failed")
	}

	sub, _ := s.Broadcaster.Subscribe(ctx, "A")
	if err := s.AbortTask(ctx, "A", id); err != nil {
		t.Fatalf("abort: %v", err)
	}
	select {
	case ev := <-sub.C():
		if ev.Kind != model.EVENT_ABORT || ev.Abort.DelegateTaskID != id {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("abort event not broadcast")
	}
	got, _ := s.GetTask(ctx, "A", id)
	if got.Status != consts.TASK_STARTED {
		t.Fatalf("started task changed by abort: %s", got.Status)
	}
	ok, _ := s.FilterAbort(ctx, "W1", &model.AbortEvent{AccountID: "A", DelegateTaskID: id})
	other, _ := s.FilterAbort(ctx, "W2", &model.AbortEvent{AccountID: "A", DelegateTaskID: id})
	if !ok || other {
		t.Fatalf("abort filter claimant=%v other=%v", ok, other)
	}
}

func TestExecuteTaskTimeoutNamesCaller(t *testing.T) {
	s := newTestDispatch(t, 50*time.Millisecond)
	start := time.Now()
	_, err := s.ExecuteTask(context.Background(), echoTask("A"), "")
	if !IsCode(err, ERR_REQUEST_TIMEOUT) {
		t.Fatalf("expected REQUEST_TIMEOUT, got %v", err)
	}
	var de *DispatchError
	errors.As(err, &de)
	if de.Params["name"] != consts.DEFAULT_CALLER {
		t.Fatalf("caller param %q", de.Params["name"])
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took %v", elapsed)
	}
	if cached, _ := s.Cache.Get(context.Background(), "id-1"); cached != nil {
		t.Fatalf("timed out task still cached")
	}

	_, err = s.ExecuteTask(context.Background(), echoTask("A"), "deploy-pipeline")
	if !errors.As(err, &de) || de.Params["name"] != "deploy-pipeline" {
		t.Fatalf("expected caller name in error, got %v", err)
	}
}

func TestExecuteTaskContextCancel(t *testing.T) {
	s := newTestDispatch(t, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := s.ExecuteTask(ctx, echoTask("A"), "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestExecuteTaskSyncRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestDispatch(t, 5*time.Second)
	sub, _ := s.Broadcaster.Subscribe(ctx, "A")

	workerErr := make(chan error, 1)
	go func() {
		ev := <-sub.C()
		task := ev.Task
		if lost, _ := s.AcquireTask(ctx, "A", "W2", "missing"); lost != nil {
			workerErr <- errors.New("acquired unknown task")
			return
		}
		claimed, err := s.AcquireTask(ctx, "A", "W1", task.ID)
		if err != nil || claimed == nil {
			workerErr <- errors.New("sync acquire failed")
			return
		}
		if second, _ := s.AcquireTask(ctx, "A", "W2", task.ID); second != nil {
			workerErr <- errors.New("second worker displaced the claimant")
			return
		}
		started, err := s.StartTask(ctx, "A", "W1", task.ID)
		if err != nil || started == nil {
			workerErr <- errors.New("sync start failed")
			return
		}
		workerErr <- s.ProcessResponse(ctx, &model.DelegateTaskResponse{
			AccountID: "A",
			Task:      started.Ref(),
			Response:  model.EchoResponse("pong"),
		})
	}()

	data, err := s.ExecuteTask(ctx, echoTask("A"), "tester")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if werr := <-workerErr; werr != nil {
		t.Fatalf("worker: %v", werr)
	}
	if data.Kind != model.RESPONSE_ECHO || data.Echo.Message != "pong" {
		t.Fatalf("unexpected response %+v", data)
	}
	if _, ok := s.Notify.Result("id-1"); ok {
		t.Fatalf("sync response must not reach the notify engine")
	}
}

func TestProcessResponseWaitIDNotifiesAndDeletes(t *testing.T) {
	ctx := context.Background()
	s := newTestDispatch(t, time.Second)
	task := echoTask("A")
	task.WaitID = "wait-1"
	id, _ := s.QueueTask(ctx, task)

	got := make(chan model.ResponseData, 1)
	s.Notify.WaitFor("wait-1", func(_ string, data model.ResponseData) { got <- data })

	claimed, _ := s.AcquireTask(ctx, "A", "W1", id)
	_, _ = s.StartTask(ctx, "A", "W1", id)
	err := s.ProcessResponse(ctx, &model.DelegateTaskResponse{
		AccountID: "A",
		Task:      claimed.Ref(),
		Response:  model.CommandResponse(model.CommandResult{Status: model.COMMAND_SUCCESS, Output: "ok"}),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	select {
	case data := <-got:
		if data.Command == nil || data.Command.Output != "ok" {
			t.Fatalf("unexpected notify data %+v", data)
		}
	default:
		t.Fatalf("wait id not notified")
	}
	if _, err := s.GetTask(ctx, "A", id); !errors.Is(err, dao.ErrNotFound) {
		t.Fatalf("task record should be deleted, got %v", err)
	}
	if _, ok, _ := s.Queue.Poll(ctx, id, 10*time.Millisecond); ok {
		t.Fatalf("wait-id response must not be offered to the queue")
	}
}

func TestQueueTaskDefaultsWaitIDToTaskID(t *testing.T) {
	ctx := context.Background()
	s := newTestDispatch(t, time.Second)
	id, _ := s.QueueTask(ctx, echoTask("A"))
	got, _ := s.GetTask(ctx, "A", id)
	if got.WaitID != id || !got.Async || got.Status != consts.TASK_QUEUED {
		t.Fatalf("unexpected queued task %+v", got)
	}
}

func TestProcessResponseWithoutCorrelationCompletes(t *testing.T) {
	ctx := context.Background()
	s := newTestDispatch(t, time.Second)
	task := echoTask("A")
	task.ID = "plain"
	task.Status = consts.TASK_STARTED
	task.DelegateID = "W1"
	_ = s.TaskDao.Create(ctx, task)

	err := s.ProcessResponse(ctx, &model.DelegateTaskResponse{
		AccountID: "A",
		Task:      model.DelegateTaskRef{ID: "plain"},
		Response:  model.ErrorResponse("boom"),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := s.GetTask(ctx, "A", "plain")
	if got.Status != consts.TASK_FAILURE {
		t.Fatalf("status=%s, want FAILURE", got.Status)
	}
}

func TestQueueTaskRejectsMismatchedParameters(t *testing.T) {
	s := newTestDispatch(t, time.Second)
	task := echoTask("A")
	task.TaskType = consts.TASK_TYPE_SHELL
	if _, err := s.QueueTask(context.Background(), task); !IsCode(err, ERR_INVALID_REQUEST) {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestFilterTask(t *testing.T) {
	ctx := context.Background()
	s := newTestDispatch(t, time.Second)
	echo := model.NewTaskTypeSet(consts.TASK_TYPE_ECHO)
	for _, d := range []*model.Delegate{
		{ID: "enabled", AccountID: "A", Status: consts.DELEGATE_ENABLED, SupportedTaskTypes: echo},
		{ID: "disabled", AccountID: "A", Status: consts.DELEGATE_DISABLED, SupportedTaskTypes: echo},
		{ID: "global", AccountID: consts.GLOBAL_ACCOUNT_ID, Status: consts.DELEGATE_ENABLED, SupportedTaskTypes: echo},
		{ID: "shell-only", AccountID: "A", Status: consts.DELEGATE_ENABLED, SupportedTaskTypes: model.NewTaskTypeSet(consts.TASK_TYPE_SHELL)},
		{ID: "no-types", AccountID: "A", Status: consts.DELEGATE_ENABLED},
		{ID: "other-account", AccountID: "B", Status: consts.DELEGATE_ENABLED, SupportedTaskTypes: echo},
	} {
		if err := s.DelegateDao.Create(ctx, d); err != nil {
			t.Fatalf("create %s: %v", d.ID, err)
		}
	}
	task := echoTask("A")
	want := map[string]bool{
		"enabled": true, "disabled": false, "global": true,
		"shell-only": false, "no-types": false, "other-account": false, "unknown": false,
	}
	for id, expect := range want {
		got, err := s.FilterTask(ctx, id, task)
		if err != nil {
			t.Fatalf("filter %s: %v", id, err)
		}
		if got != expect {
			t.Fatalf("filter %s = %v, want %v", id, got, expect)
		}
	}
}

func TestStreamFiltersPerDelegate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestDispatch(t, time.Second)
	_ = s.DelegateDao.Create(ctx, &model.Delegate{ID: "G", AccountID: consts.GLOBAL_ACCOUNT_ID,
		Status: consts.DELEGATE_ENABLED, SupportedTaskTypes: model.NewTaskTypeSet(consts.TASK_TYPE_ECHO)})

	stream, err := s.Stream(ctx, consts.GLOBAL_ACCOUNT_ID, "G")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	shell := &model.DelegateTask{AccountID: "A", TaskType: consts.TASK_TYPE_SHELL,
		Parameters: model.ShellParameters(model.ShellParams{Script: "true"})}
	_, _ = s.QueueTask(ctx, shell)
	id, _ := s.QueueTask(ctx, echoTask("A"))

	select {
	case ev := <-stream:
		if ev.Kind != model.EVENT_NEW_TASK || ev.Task.ID != id {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("global delegate did not receive task")
	}
}

func TestQueueTaskDuplicateIDIsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestDispatch(t, time.Second)
	first := echoTask("A")
	first.ID = "fixed"
	if _, err := s.QueueTask(ctx, first); err != nil {
		t.Fatalf("queue: %v", err)
	}
	dup := echoTask("A")
	dup.ID = "fixed"
	_, err := s.QueueTask(ctx, dup)
	if !IsCode(err, ERR_INVALID_REQUEST) {
		t.Fatalf("duplicate id: got %v, want INVALID_REQUEST", err)
	}
	if !errors.Is(err, dao.ErrDuplicate) {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestAbortQueuedDiscardsWaitRegistration(t *testing.T) {
	ctx := context.Background()
	s := newTestDispatch(t, time.Second)
	task := echoTask("A")
	task.WaitID = "wait-abort"
	task.CallbackURL = "http://caller/hook"
	id, _ := s.QueueTask(ctx, task)
	s.Notify.WaitFor("wait-abort", func(string, model.ResponseData) {})

	if err := s.AbortTask(ctx, "A", id); err != nil {
		t.Fatalf("abort: %v", err)
	}
	s.Notify.mu.Lock()
	_, hook := s.Notify.webhooks["wait-abort"]
	waiters := len(s.Notify.waiters["wait-abort"])
	s.Notify.mu.Unlock()
	if hook || waiters != 0 {
		t.Fatalf("aborted task still registered: webhook=%v waiters=%d", hook, waiters)
	}
}

package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/broadcast"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/cache"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/queue"
)

// countingDelegateDao 记录 Create/Update 次数
type countingDelegateDao struct {
	*dao.MemoryDelegateDao
	mu      sync.Mutex
	creates int
	updates int
}

func (c *countingDelegateDao) Create(ctx context.Context, d *model.Delegate) error {
	c.mu.Lock()
	c.creates++
	c.mu.Unlock()
	return c.MemoryDelegateDao.Create(ctx, d)
}

func (c *countingDelegateDao) Update(ctx context.Context, accountID, id string, u model.DelegateUpdate) (*model.Delegate, error) {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
	return c.MemoryDelegateDao.Update(ctx, accountID, id, u)
}

// touchRecorder 记录 TouchStarted 调用参数
type touchRecorder struct {
	*dao.MemoryTaskDao
	delegateID string
	ids        []string
}

func (r *touchRecorder) TouchStarted(ctx context.Context, accountID, delegateID string, ids []string, before time.Time) (int64, error) {
	r.delegateID = delegateID
	r.ids = append([]string(nil), ids...)
	return r.MemoryTaskDao.TouchStarted(ctx, accountID, delegateID, ids, before)
}

type fakeDoer struct {
	mu    sync.Mutex
	body  string
	err   error
	calls []fakeCall
	done  chan struct{}
}

type fakeCall struct {
	method string
	url    string
	body   any
}

func (f *fakeDoer) Do(_ context.Context, method, path string, _, _ map[string]string, body, out any) (*http.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{method: method, url: path, body: body})
	f.mu.Unlock()
	if f.done != nil {
		defer func() { f.done <- struct{}{} }()
	}
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := out.(*string); ok {
		*s = f.body
	}
	return &http.Response{StatusCode: http.StatusOK}, nil
}

func sequentialIDs() func() string {
	var n int64
	return func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&n, 1)) }
}

func newTestDispatch(t *testing.T, syncTimeout time.Duration) *DispatchService {
	t.Helper()
	s := NewDispatchService(syncTimeout)
	s.TaskDao = dao.NewMemoryTaskDao()
	s.DelegateDao = dao.NewMemoryDelegateDao()
	s.Cache = cache.NewMemoryCache(time.Minute)
	s.Queue = queue.NewMemoryQueue(time.Minute)
	s.Broadcaster = broadcast.NewMemoryBroadcaster()
	s.Notify = NewNotifyEngine(1, time.Minute, "")
	s.newID = sequentialIDs()
	return s
}

func echoTask(account string) *model.DelegateTask {
	return &model.DelegateTask{
		AccountID:  account,
		TaskType:   consts.TASK_TYPE_ECHO,
		Parameters: model.EchoParameters("hello"),
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/http_client"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

const upgradeFetchTimeout = 2 * time.Second

// DelegateService delegate 注册、心跳与升级检查
type DelegateService struct {
	*core.BaseComponent
	DelegateDao dao.DelegateDao                   `infra:"dep:delegate_dao"`
	TaskDao     dao.TaskDao                       `infra:"dep:task_dao"`
	HTTPClients *http_client.HTTPClientsComponent `infra:"dep:http_clients?"`

	upgradeClient string
	metadataURL   string
	fetcher       HTTPDoer
	newID         func() string
	now           func() time.Time
}

func NewDelegateService(upgradeClient, metadataURL string) *DelegateService {
	return &DelegateService{
		BaseComponent: core.NewBaseComponent(consts.COMP_SVC_DELEGATE),
		upgradeClient: upgradeClient,
		metadataURL:   metadataURL,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

func (s *DelegateService) Start(ctx context.Context) error {
	if err := s.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if s.fetcher != nil || s.HTTPClients == nil || s.metadataURL == "" {
		return nil
	}
	var (
		cli *http_client.InstrumentedClient
		err error
	)
	if s.upgradeClient != "" {
		cli, err = s.HTTPClients.Client(s.upgradeClient)
	} else {
		cli, err = s.HTTPClients.Default()
	}
	if err != nil {
		logging.Warn(ctx, "upgrade metadata client unavailable", zap.String("client", s.upgradeClient), zap.Error(err))
		return nil
	}
	s.fetcher = cli
	return nil
}

// Register 按 (ip, host_name, account) 查找：不存在则新增；存在则沿用 id 更新，DISABLED 状态不会被覆盖
func (s *DelegateService) Register(ctx context.Context, d *model.Delegate) (*model.Delegate, error) {
	if d.AccountID == "" || d.HostName == "" {
		return nil, newError(ERR_INVALID_REQUEST, nil, "reason", "account_id and host_name are required")
	}
	d.Connected = true
	if d.LastHeartbeat == 0 {
		d.LastHeartbeat = s.now().UnixMilli()
	}
	existing, err := s.DelegateDao.FindByHost(ctx, d.AccountID, d.IP, d.HostName)
	if err != nil {
		return nil, fmt.Errorf("lookup delegate %s/%s: %w", d.IP, d.HostName, err)
	}
	if existing == nil {
		logging.Info(ctx, "registering new delegate", zap.String("account_id", d.AccountID), zap.String("host", d.HostName))
		return s.Add(ctx, d)
	}
	d.ID = existing.ID
	if existing.Status == consts.DELEGATE_DISABLED {
		d.Status = consts.DELEGATE_DISABLED
	}
	logging.Debug(ctx, "delegate exists, updating", zap.String("delegate_id", d.ID))
	return s.Update(ctx, d)
}

func (s *DelegateService) Add(ctx context.Context, d *model.Delegate) (*model.Delegate, error) {
	if d.AccountID == "" {
		return nil, newError(ERR_INVALID_REQUEST, nil, "reason", "account_id is required")
	}
	if d.ID == "" {
		d.ID = s.newID()
	}
	if d.Status == "" {
		d.Status = consts.DELEGATE_ENABLED
	}
	if d.Version == "" {
		d.Version = consts.DEFAULT_DELEGATE_VERSION
	}
	d.SupportedTaskTypes = model.NewTaskTypeSet(d.SupportedTaskTypes...)
	if err := s.DelegateDao.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create delegate: %w", err)
	}
	return d.Clone(), nil
}

// Update 部分更新状态、心跳、连接与支持的任务类型；随后刷新该 delegate 上报的执行中任务，
// 避免被 reaper 判定超时。查询和写入之间没有锁，可能与并发的完成请求交错。
func (s *DelegateService) Update(ctx context.Context, d *model.Delegate) (*model.Delegate, error) {
	u := model.DelegateUpdate{Connected: &d.Connected}
	if d.Status != "" {
		u.Status = &d.Status
	}
	if d.LastHeartbeat != 0 {
		u.LastHeartbeat = &d.LastHeartbeat
	}
	if d.SupportedTaskTypes != nil {
		u.SupportedTaskTypes = model.NewTaskTypeSet(d.SupportedTaskTypes...)
	}
	if d.Version != "" {
		u.Version = &d.Version
	}
	updated, err := s.DelegateDao.Update(ctx, d.AccountID, d.ID, u)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, newError(ERR_DELEGATE_NOT_FOUND, err, "delegate_id", d.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("update delegate %s: %w", d.ID, err)
	}

	if len(d.CurrentlyExecutingTasks) > 0 {
		n, err := s.TaskDao.TouchStarted(ctx, d.AccountID, d.ID, d.CurrentlyExecutingTasks, s.now().UTC())
		if err != nil {
			logging.Error(ctx, "touch executing tasks failed", zap.String("delegate_id", d.ID), zap.Error(err))
		} else {
			logging.Debug(ctx, "touched executing tasks", zap.String("delegate_id", d.ID), zap.Int64("count", n))
		}
	}
	updated.CurrentlyExecutingTasks = d.CurrentlyExecutingTasks
	return updated, nil
}

// Heartbeat 心跳：连接状态置为 true 并上报执行中的任务
func (s *DelegateService) Heartbeat(ctx context.Context, accountID, delegateID string, executing []string) (*model.Delegate, error) {
	return s.Update(ctx, &model.Delegate{
		ID:                      delegateID,
		AccountID:               accountID,
		Connected:               true,
		LastHeartbeat:           s.now().UnixMilli(),
		CurrentlyExecutingTasks: executing,
	})
}

func (s *DelegateService) Get(ctx context.Context, accountID, delegateID string) (*model.Delegate, error) {
	d, err := s.DelegateDao.Get(ctx, accountID, delegateID)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, newError(ERR_DELEGATE_NOT_FOUND, err, "delegate_id", delegateID)
	}
	return d, err
}

func (s *DelegateService) List(ctx context.Context, accountID string, limit, offset int) ([]*model.Delegate, int64, error) {
	list, err := s.DelegateDao.List(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.DelegateDao.Count(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *DelegateService) Delete(ctx context.Context, accountID, delegateID string) error {
	logging.Debug(ctx, "deleting delegate", zap.String("delegate_id", delegateID))
	return s.DelegateDao.Delete(ctx, accountID, delegateID)
}

// CheckForUpgrade 对比上报版本与元数据地址给出的最新版本。返回的 Version 为目标版本，不落库。
func (s *DelegateService) CheckForUpgrade(ctx context.Context, accountID, delegateID, version string) (*model.Delegate, error) {
	current, ok := canonicalVersion(version)
	if !ok {
		return nil, newError(ERR_INVALID_REQUEST, nil, "reason", fmt.Sprintf("invalid version %q", version))
	}
	d, err := s.Get(ctx, accountID, delegateID)
	if err != nil {
		return nil, err
	}
	latest := s.latestVersion(ctx)
	latestCanon, _ := canonicalVersion(latest)
	d.DoUpgrade = semver.Compare(current, latestCanon) < 0
	if d.DoUpgrade {
		logging.Info(ctx, "delegate upgrade available", zap.String("delegate_id", delegateID),
			zap.String("from", version), zap.String("to", latest))
		d.Version = latest
	}
	return d, nil
}

// latestVersion 元数据内容形如 "1.2.3 <其它信息>"，取第一个空格前的部分；获取失败视为 0.0.0
func (s *DelegateService) latestVersion(ctx context.Context) string {
	if s.fetcher == nil || s.metadataURL == "" {
		return consts.DEFAULT_DELEGATE_VERSION
	}
	fetchCtx, cancel := context.WithTimeout(ctx, upgradeFetchTimeout)
	defer cancel()
	var body string
	if _, err := s.fetcher.Do(fetchCtx, http.MethodGet, s.metadataURL, nil, nil, nil, &body); err != nil {
		logging.Error(ctx, "unable to fetch delegate version information", zap.Error(err))
		return consts.DEFAULT_DELEGATE_VERSION
	}
	latest, _, _ := strings.Cut(strings.TrimSpace(body), " ")
	if _, ok := canonicalVersion(latest); !ok {
		logging.Warn(ctx, "delegate metadata carries no valid version", zap.String("value", latest))
		return consts.DEFAULT_DELEGATE_VERSION
	}
	return latest
}

// canonicalVersion 补齐 "v" 前缀以便用 semver 比较
func canonicalVersion(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v, semver.IsValid(v)
}

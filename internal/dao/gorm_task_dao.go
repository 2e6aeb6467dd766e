package dao

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/mysqlgorm"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/postgresgorm"
	appconsts "github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

const unassigned = "(delegate_id IS NULL OR delegate_id = '')"

// gormSource 按存储驱动解析 *gorm.DB；两个 gorm 组件都是可选依赖，只有选中的驱动必须存在
type gormSource struct {
	MySQL    *mysqlgorm.GormComponent            `infra:"dep:mysql_gorm?"`
	Postgres *postgresgorm.PostgresGormComponent `infra:"dep:postgres_gorm?"`

	driver     string
	dataSource string
}

func (s *gormSource) open() (*gorm.DB, error) {
	switch s.driver {
	case consts.STORE_MYSQL:
		if s.MySQL == nil {
			return nil, fmt.Errorf("store driver mysql requires component %s", appconsts.COMPONENT_MYSQL_GORM)
		}
		return s.MySQL.GetDB(s.dataSource)
	case consts.STORE_POSTGRES:
		if s.Postgres == nil {
			return nil, fmt.Errorf("store driver postgres requires component %s", appconsts.COMPONENT_POSTGRES_GORM)
		}
		return s.Postgres.GetDB(s.dataSource)
	}
	return nil, fmt.Errorf("unsupported gorm store driver %q", s.driver)
}

// returning postgres 支持 UPDATE ... RETURNING，一次往返拿到更新后的行
func (s *gormSource) returning() bool { return s.driver == consts.STORE_POSTGRES }

type GormTaskDao struct {
	*core.BaseComponent
	gormSource
	db  *gorm.DB
	now clock
}

func NewGormTaskDao(driver, dataSource string) *GormTaskDao {
	return &GormTaskDao{
		BaseComponent: core.NewBaseComponent(consts.COMP_DAO_TASK),
		gormSource:    gormSource{driver: driver, dataSource: dataSource},
		now:           defaultClock,
	}
}

func (r *GormTaskDao) Start(ctx context.Context) error {
	db, err := r.open()
	if err != nil {
		return err
	}
	r.db = db
	return r.BaseComponent.Start(ctx)
}

func (r *GormTaskDao) Create(ctx context.Context, t *model.DelegateTask) error {
	now := r.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.LastUpdatedAt = now
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *GormTaskDao) Get(ctx context.Context, accountID, id string) (*model.DelegateTask, error) {
	var t model.DelegateTask
	if err := r.db.WithContext(ctx).Where("account_id = ? AND id = ?", accountID, id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormTaskDao) filtered(ctx context.Context, accountID string, f model.TaskFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&model.DelegateTask{}).Where("account_id = ?", accountID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.TaskType != "" {
		q = q.Where("task_type = ?", f.TaskType)
	}
	if f.DelegateID != "" {
		q = q.Where("delegate_id = ?", f.DelegateID)
	}
	return q
}

func (r *GormTaskDao) ListByAccount(ctx context.Context, accountID string, f model.TaskFilter, limit, offset int) ([]*model.DelegateTask, error) {
	limit, offset = normalizePage(limit, offset)
	var list []*model.DelegateTask
	err := r.filtered(ctx, accountID, f).Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *GormTaskDao) CountByAccount(ctx context.Context, accountID string, f model.TaskFilter) (int64, error) {
	var n int64
	err := r.filtered(ctx, accountID, f).Count(&n).Error
	return n, err
}

// conditionalUpdate 执行单行条件更新；未命中返回 nil
func (r *GormTaskDao) conditionalUpdate(ctx context.Context, accountID, id string, where func(*gorm.DB) *gorm.DB, updates map[string]any) (*model.DelegateTask, error) {
	updates["last_updated_at"] = r.now()
	if r.returning() {
		var rows []model.DelegateTask
		res := where(r.db.WithContext(ctx).Model(&rows).Clauses(clause.Returning{}).
			Where("account_id = ? AND id = ?", accountID, id)).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 || len(rows) == 0 {
			return nil, nil
		}
		return &rows[0], nil
	}
	res := where(r.db.WithContext(ctx).Model(&model.DelegateTask{}).
		Where("account_id = ? AND id = ?", accountID, id)).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, nil
	}
	return r.Get(ctx, accountID, id)
}

func queuedUnassigned(q *gorm.DB) *gorm.DB {
	return q.Where("status = ?", consts.TASK_QUEUED).Where(unassigned)
}

func queuedClaimedBy(delegateID string) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND delegate_id = ?", consts.TASK_QUEUED, delegateID)
	}
}

func (r *GormTaskDao) ClaimQueued(ctx context.Context, accountID, taskID, delegateID string) (*model.DelegateTask, error) {
	return r.conditionalUpdate(ctx, accountID, taskID, queuedUnassigned, map[string]any{"delegate_id": delegateID})
}

func (r *GormTaskDao) StartClaimed(ctx context.Context, accountID, taskID, delegateID string) (*model.DelegateTask, error) {
	return r.conditionalUpdate(ctx, accountID, taskID, queuedClaimedBy(delegateID), map[string]any{"status": consts.TASK_STARTED})
}

func (r *GormTaskDao) AbortQueued(ctx context.Context, accountID, taskID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.DelegateTask{}).
		Where("account_id = ? AND id = ? AND status = ?", accountID, taskID, consts.TASK_QUEUED).
		Updates(map[string]any{"status": consts.TASK_ABORTED, "delegate_id": "", "last_updated_at": r.now()})
	return res.RowsAffected > 0, res.Error
}

func (r *GormTaskDao) TouchStarted(ctx context.Context, accountID, delegateID string, ids []string, before time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&model.DelegateTask{}).
		Where("account_id = ? AND delegate_id = ? AND status = ?", accountID, delegateID, consts.TASK_STARTED).
		Where("id IN ? AND last_updated_at < ?", ids, before).
		Update("last_updated_at", r.now())
	return res.RowsAffected, res.Error
}

func (r *GormTaskDao) Complete(ctx context.Context, accountID, id string, status consts.TaskStatus) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %s is not terminal", status)
	}
	res := r.db.WithContext(ctx).Model(&model.DelegateTask{}).
		Where("account_id = ? AND id = ? AND status = ?", accountID, id, consts.TASK_STARTED).
		Updates(map[string]any{"status": status, "last_updated_at": r.now()})
	return res.RowsAffected > 0, res.Error
}

func (r *GormTaskDao) ExpireStarted(ctx context.Context, cutoff time.Time, limit int) ([]*model.DelegateTask, error) {
	if limit <= 0 {
		limit = 500
	}
	var list []*model.DelegateTask
	err := r.db.WithContext(ctx).Where("status = ? AND last_updated_at < ?", consts.TASK_STARTED, cutoff).
		Order("last_updated_at").Limit(limit).Find(&list).Error
	return list, err
}

func (r *GormTaskDao) Delete(ctx context.Context, accountID, id string) error {
	return r.db.WithContext(ctx).Where("account_id = ? AND id = ?", accountID, id).Delete(&model.DelegateTask{}).Error
}

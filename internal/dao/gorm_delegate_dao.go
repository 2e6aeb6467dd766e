package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

type GormDelegateDao struct {
	*core.BaseComponent
	gormSource
	db  *gorm.DB
	now clock
}

func NewGormDelegateDao(driver, dataSource string) *GormDelegateDao {
	return &GormDelegateDao{
		BaseComponent: core.NewBaseComponent(consts.COMP_DAO_DELEGATE),
		gormSource:    gormSource{driver: driver, dataSource: dataSource},
		now:           defaultClock,
	}
}

func (r *GormDelegateDao) Start(ctx context.Context) error {
	db, err := r.open()
	if err != nil {
		return err
	}
	r.db = db
	return r.BaseComponent.Start(ctx)
}

func (r *GormDelegateDao) FindByHost(ctx context.Context, accountID, ip, hostName string) (*model.Delegate, error) {
	var d model.Delegate
	err := r.db.WithContext(ctx).Where("account_id = ? AND ip = ? AND host_name = ?", accountID, ip, hostName).
		Order("created_at").First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormDelegateDao) Create(ctx context.Context, d *model.Delegate) error {
	now := r.now()
	d.CreatedAt, d.LastUpdatedAt = now, now
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *GormDelegateDao) Get(ctx context.Context, accountID, id string) (*model.Delegate, error) {
	var d model.Delegate
	if err := r.db.WithContext(ctx).Where("account_id = ? AND id = ?", accountID, id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormDelegateDao) List(ctx context.Context, accountID string, limit, offset int) ([]*model.Delegate, error) {
	limit, offset = normalizePage(limit, offset)
	var list []*model.Delegate
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).
		Order("created_at").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *GormDelegateDao) Count(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Delegate{}).Where("account_id = ?", accountID).Count(&n).Error
	return n, err
}

func (r *GormDelegateDao) Update(ctx context.Context, accountID, id string, u model.DelegateUpdate) (*model.Delegate, error) {
	cols := u.Columns()
	cols["last_updated_at"] = r.now()
	res := r.db.WithContext(ctx).Model(&model.Delegate{}).Where("account_id = ? AND id = ?", accountID, id).Updates(cols)
	if res.Error != nil {
		return nil, res.Error
	}
	return r.Get(ctx, accountID, id)
}

func (r *GormDelegateDao) Delete(ctx context.Context, accountID, id string) error {
	return r.db.WithContext(ctx).Where("account_id = ? AND id = ?", accountID, id).Delete(&model.Delegate{}).Error
}

func (r *GormDelegateDao) MarkDisconnected(ctx context.Context, cutoffMillis int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Delegate{}).
		Where("connected = ? AND last_heartbeat < ?", true, cutoffMillis).
		Updates(map[string]any{"connected": false, "last_updated_at": r.now()})
	return res.RowsAffected, res.Error
}

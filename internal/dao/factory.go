package dao

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
)

// NewTaskDao 按存储驱动选择实现
func NewTaskDao(driver, dataSource string) (TaskDao, error) {
	switch driver {
	case consts.STORE_MYSQL, consts.STORE_POSTGRES:
		return NewGormTaskDao(driver, dataSource), nil
	case consts.STORE_MEMORY, "":
		return NewMemoryTaskDao(), nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", driver)
}

func NewDelegateDao(driver, dataSource string) (DelegateDao, error) {
	switch driver {
	case consts.STORE_MYSQL, consts.STORE_POSTGRES:
		return NewGormDelegateDao(driver, dataSource), nil
	case consts.STORE_MEMORY, "":
		return NewMemoryDelegateDao(), nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", driver)
}

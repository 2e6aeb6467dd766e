package mysqlgorm

import (
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config) (core.Component, error) {
	if err := cfg.Validate(consts.COMPONENT_MYSQL_GORM); err != nil {
		return nil, err
	}
	return NewGormComponent(cfg), nil
}

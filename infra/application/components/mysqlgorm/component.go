package mysqlgorm

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/gormkit"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

// GormComponent 每个数据源一个 *gorm.DB
type GormComponent struct {
	*core.BaseComponent
	pool *gormkit.Pool
}

func NewGormComponent(cfg *Config) *GormComponent {
	return &GormComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_MYSQL_GORM, consts.COMPONENT_LOGGING),
		pool:          gormkit.NewPool(consts.COMPONENT_MYSQL_GORM, cfg, dialector),
	}
}

func dialector(ds *gormkit.DataSource) (gorm.Dialector, error) {
	dsn, err := buildDSN(ds)
	if err != nil {
		return nil, err
	}
	return gormmysql.New(gormmysql.Config{DSN: dsn}), nil
}

func (c *GormComponent) Start(ctx context.Context) error {
	if err := c.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if err := c.pool.Open(ctx); err != nil {
		_ = c.BaseComponent.Stop(ctx)
		return err
	}
	logging.Infof(ctx, "[mysql_gorm] started")
	return nil
}

func (c *GormComponent) Stop(ctx context.Context) error {
	defer func() { _ = c.BaseComponent.Stop(ctx) }()
	c.pool.Close(ctx)
	return nil
}

func (c *GormComponent) HealthCheck() error {
	if err := c.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.pool.Ping(ctx)
}

func (c *GormComponent) GetDB(name string) (*gorm.DB, error) { return c.pool.Get(name) }

// buildDSN 未提供 dsn 时用驱动自身的 Config.FormatDSN 拼接，params 原样透传
func buildDSN(ds *gormkit.DataSource) (string, error) {
	if strings.TrimSpace(ds.DSN) != "" {
		return ds.DSN, nil
	}
	if ds.Host == "" || ds.User == "" || ds.Database == "" {
		return "", errors.New("host, user, database required when dsn not provided")
	}
	port := ds.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = ds.User
	mc.Passwd = ds.Password
	mc.Net = "tcp"
	mc.Addr = ds.Host + ":" + strconv.Itoa(port)
	mc.DBName = ds.Database
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range ds.Params {
		mc.Params[k] = v
	}
	return mc.FormatDSN(), nil
}

package postgresgorm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/gormkit"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

type PostgresGormComponent struct {
	*core.BaseComponent
	pool *gormkit.Pool
}

func NewPostgresGormComponent(cfg *Config) *PostgresGormComponent {
	return &PostgresGormComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_POSTGRES_GORM, consts.COMPONENT_LOGGING),
		pool: gormkit.NewPool(consts.COMPONENT_POSTGRES_GORM, cfg, func(ds *gormkit.DataSource) (gorm.Dialector, error) {
			dsn, err := buildDSN(ds)
			if err != nil {
				return nil, err
			}
			return gormpg.Open(dsn), nil
		}),
	}
}

func (c *PostgresGormComponent) Start(ctx context.Context) error {
	if err := c.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if err := c.pool.Open(ctx); err != nil {
		_ = c.BaseComponent.Stop(ctx)
		return err
	}
	logging.Infof(ctx, "[postgres_gorm] started")
	return nil
}

func (c *PostgresGormComponent) Stop(ctx context.Context) error {
	defer func() { _ = c.BaseComponent.Stop(ctx) }()
	c.pool.Close(ctx)
	return nil
}

func (c *PostgresGormComponent) HealthCheck() error {
	if err := c.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.pool.Ping(ctx)
}

func (c *PostgresGormComponent) GetDB(name string) (*gorm.DB, error) { return c.pool.Get(name) }

// buildDSN libpq key=value 形式，含空格或引号的值加单引号转义
func buildDSN(ds *gormkit.DataSource) (string, error) {
	if strings.TrimSpace(ds.DSN) != "" {
		return ds.DSN, nil
	}
	if ds.Host == "" || ds.User == "" || ds.Database == "" {
		return "", errors.New("host, user, database required when dsn not provided")
	}
	port := ds.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		"host=" + quote(ds.Host),
		"user=" + quote(ds.User),
		"password=" + quote(ds.Password),
		"dbname=" + quote(ds.Database),
		fmt.Sprintf("port=%d", port),
	}
	keys := make([]string, 0, len(ds.Params))
	for k := range ds.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+quote(ds.Params[k]))
	}
	return strings.Join(parts, " "), nil
}

func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

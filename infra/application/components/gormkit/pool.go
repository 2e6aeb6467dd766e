package gormkit

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
)

// DialectorFunc 由具体驱动把数据源配置转为 gorm.Dialector
type DialectorFunc func(ds *DataSource) (gorm.Dialector, error)

// Pool 每个数据源一个 *gorm.DB
type Pool struct {
	component string
	cfg       *Config
	dial      DialectorFunc

	mu  sync.RWMutex
	dbs map[string]*gorm.DB
}

func NewPool(component string, cfg *Config, dial DialectorFunc) *Pool {
	return &Pool{component: component, cfg: cfg, dial: dial, dbs: map[string]*gorm.DB{}}
}

// Open 打开全部数据源；任一失败时关闭已打开的连接。
func (p *Pool) Open(ctx context.Context) error {
	if err := p.cfg.Validate(p.component); err != nil {
		return err
	}
	gl := NewLogger(p.cfg.LogLevel, p.cfg.SlowThreshold)
	for _, name := range sortedKeys(p.cfg.DataSources) {
		ds := p.cfg.DataSources[name]
		db, err := p.openOne(ctx, name, ds, gl)
		if err != nil {
			p.Close(ctx)
			return err
		}
		p.mu.Lock()
		p.dbs[name] = db
		p.mu.Unlock()
		logging.Info(ctx, "gorm datasource initialized", zap.String("component", p.component), zap.String("datasource", name))
	}
	return nil
}

func (p *Pool) openOne(ctx context.Context, name string, ds *DataSource, gl logger.Interface) (*gorm.DB, error) {
	dialector, err := p.dial(ds)
	if err != nil {
		return nil, fmt.Errorf("build dialector for %s failed: %w", name, err)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   gl,
		SkipDefaultTransaction:                   ds.SkipDefaultTransaction,
		PrepareStmt:                              ds.PrepareStmt,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s datasource %s failed: %w", p.component, name, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB for %s failed: %w", name, err)
	}
	applyPool(sqlDB, ds)

	if ds.PingOnStart {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := sqlDB.PingContext(pingCtx)
		cancel()
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping %s datasource %s failed: %w", p.component, name, err)
		}
	}
	if ds.MigrateEnabled {
		begin := time.Now()
		n, err := RunMigrations(ctx, sqlDB, ds.MigrateDir)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%s datasource %s migrations failed: %w", p.component, name, err)
		}
		logging.Info(ctx, "gorm migrations applied",
			zap.String("datasource", name), zap.Int("files", n), zap.Duration("dur", time.Since(begin)))
	}
	return db, nil
}

func applyPool(sqlDB *sql.DB, ds *DataSource) {
	maxOpen, maxIdle, life := 50, 10, 60*time.Minute
	if ds.MaxOpenConns > 0 {
		maxOpen = ds.MaxOpenConns
	}
	if ds.MaxIdleConns > 0 {
		maxIdle = ds.MaxIdleConns
	}
	if ds.ConnMaxLife > 0 {
		life = ds.ConnMaxLife
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(life)
	if ds.ConnMaxIdle > 0 {
		sqlDB.SetConnMaxIdleTime(ds.ConnMaxIdle)
	}
}

func (p *Pool) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, db := range p.dbs {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		logging.Info(ctx, "gorm datasource closed", zap.String("component", p.component), zap.String("datasource", name))
	}
	p.dbs = map[string]*gorm.DB{}
}

func (p *Pool) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name, db := range p.dbs {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("datasource %s get sql.DB failed: %w", name, err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("datasource %s ping failed: %w", name, err)
		}
	}
	return nil
}

func (p *Pool) Get(name string) (*gorm.DB, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, ok := p.dbs[name]
	if !ok {
		return nil, fmt.Errorf("%s datasource %s not found", p.component, name)
	}
	return db, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

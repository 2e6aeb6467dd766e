package gormkit

import "time"

// Config 多数据源 gorm 配置，mysql_gorm 与 postgres_gorm 共用。
type Config struct {
	Enabled     bool                   `yaml:"enabled" json:"enabled"`
	DataSources map[string]*DataSource `yaml:"data_sources" json:"data_sources"`
	// LogLevel silent|error|warn|info|debug
	LogLevel      string        `yaml:"log_level" json:"log_level"`
	SlowThreshold time.Duration `yaml:"slow_threshold" json:"slow_threshold"`
}

type DataSource struct {
	// DSN 优先；为空时由各驱动用连接参数拼接
	DSN string `yaml:"dsn" json:"dsn"`

	Host     string            `yaml:"host" json:"host"`
	Port     int               `yaml:"port" json:"port"`
	User     string            `yaml:"user" json:"user"`
	Password string            `yaml:"password" json:"password"`
	Database string            `yaml:"database" json:"database"`
	Params   map[string]string `yaml:"params" json:"params"`

	MaxOpenConns int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"conn_max_life" json:"conn_max_life"`
	ConnMaxIdle  time.Duration `yaml:"conn_max_idle" json:"conn_max_idle"`
	PingOnStart  bool          `yaml:"ping_on_start" json:"ping_on_start"`

	SkipDefaultTransaction bool `yaml:"skip_default_tx" json:"skip_default_tx"`
	PrepareStmt            bool `yaml:"prepare_stmt" json:"prepare_stmt"`

	// 按文件名字典序执行目录下的 .sql 文件（不递归）
	MigrateEnabled bool   `yaml:"migrate_enabled" json:"migrate_enabled"`
	MigrateDir     string `yaml:"migrate_dir" json:"migrate_dir"`
}

func (c *Config) Validate(component string) error {
	if c == nil || !c.Enabled {
		return errDisabled(component)
	}
	if len(c.DataSources) == 0 {
		return errNoDataSources(component)
	}
	for name, ds := range c.DataSources {
		if ds == nil {
			return errNilDataSource(component, name)
		}
		if ds.MigrateEnabled && ds.MigrateDir == "" {
			return errMigrateDir(component, name)
		}
	}
	return nil
}

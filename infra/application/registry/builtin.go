package registry

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/grpc_client"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/grpc_server"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/http_client"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/http_server"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/mysqlgorm"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/postgresgorm"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/prometheus"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/redis"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/telemetry"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

// section 从 AppConfig 取出某个组件的小节；返回 false 表示未启用
type section[T any] func(cfg *config.AppConfig) (T, bool)

func factoryBuilder[T any](pick section[T], create func(T) (core.Component, error)) BuilderFunc {
	return func(cfg *config.AppConfig, _ *core.Container) (bool, core.Component, error) {
		sec, ok := pick(cfg)
		if !ok {
			return false, nil, nil
		}
		comp, err := create(sec)
		if err != nil {
			return true, nil, err
		}
		return true, comp, nil
	}
}

func appName(cfg *config.AppConfig) string {
	if cfg.APPInfo == nil {
		return ""
	}
	return cfg.APPInfo.APPName
}

func init() {
	Register(consts.COMPONENT_LOGGING, factoryBuilder(
		func(cfg *config.AppConfig) (*logging.LoggingConfig, bool) {
			return cfg.Logging, cfg.Logging != nil && cfg.Logging.Enabled
		},
		logging.NewFactory().Create,
	))

	Register(consts.COMPONENT_TELEMETRY, factoryBuilder(
		func(cfg *config.AppConfig) (*telemetry.Config, bool) {
			if cfg.Telemetry == nil || !cfg.Telemetry.Enabled {
				return nil, false
			}
			if cfg.Telemetry.ServiceName == "" {
				cfg.Telemetry.ServiceName = appName(cfg)
			}
			if cfg.Telemetry.ServiceVersion == "" && cfg.APPInfo != nil {
				cfg.Telemetry.ServiceVersion = cfg.APPInfo.Version
			}
			return cfg.Telemetry, true
		},
		telemetry.NewFactory().Create,
	))

	Register(consts.COMPONENT_PROMETHEUS, factoryBuilder(
		func(cfg *config.AppConfig) (*prometheus.Config, bool) {
			return cfg.Prometheus, cfg.Prometheus != nil && cfg.Prometheus.Enabled
		},
		prometheus.NewFactory().Create,
	))

	Register(consts.COMPONENT_REDIS, factoryBuilder(
		func(cfg *config.AppConfig) (*redis.Config, bool) {
			return cfg.Redis, cfg.Redis != nil && cfg.Redis.Enabled
		},
		redis.NewFactory().Create,
	))

	Register(consts.COMPONENT_MYSQL_GORM, factoryBuilder(
		func(cfg *config.AppConfig) (*mysqlgorm.Config, bool) {
			return cfg.MySQLGORM, cfg.MySQLGORM != nil && cfg.MySQLGORM.Enabled
		},
		mysqlgorm.NewFactory().Create,
	))

	Register(consts.COMPONENT_POSTGRES_GORM, factoryBuilder(
		func(cfg *config.AppConfig) (*postgresgorm.Config, bool) {
			return cfg.PostgresGORM, cfg.PostgresGORM != nil && cfg.PostgresGORM.Enabled
		},
		postgresgorm.NewFactory().Create,
	))

	Register(consts.COMPONENT_HTTP_CLIENTS, factoryBuilder(
		func(cfg *config.AppConfig) (*http_client.HTTPClientsConfig, bool) {
			return cfg.HTTPClients, cfg.HTTPClients != nil && cfg.HTTPClients.Enabled
		},
		http_client.NewFactory().Create,
	))

	Register(consts.COMPONENT_GRPC_CLIENTS, factoryBuilder(
		func(cfg *config.AppConfig) (*grpc_client.GRPCClientsConfig, bool) {
			return cfg.GRPCClients, cfg.GRPCClients != nil && cfg.GRPCClients.Enabled
		},
		grpc_client.NewFactory().Create,
	))

	// 服务端组件需要容器来解析业务注册的路由/服务
	Register(consts.COMPONENT_HTTP_SERVER, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.HTTPServer == nil || !cfg.HTTPServer.Enabled {
			return false, nil, nil
		}
		if cfg.HTTPServer.ServiceName == "" {
			cfg.HTTPServer.ServiceName = appName(cfg)
		}
		comp, err := http_server.NewFactory(c).Create(cfg.HTTPServer)
		if err != nil {
			return true, nil, fmt.Errorf("http_server: %w", err)
		}
		return true, comp, nil
	})

	Register(consts.COMPONENT_GRPC_SERVER, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.GRPCServer == nil || !cfg.GRPCServer.Enabled {
			return false, nil, nil
		}
		comp, err := grpc_server.NewFactory(c).Create(cfg.GRPCServer)
		if err != nil {
			return true, nil, fmt.Errorf("grpc_server: %w", err)
		}
		return true, comp, nil
	})
}

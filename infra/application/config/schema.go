package config

import (
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
)

// AppConfig 应用程序配置结构，小节缺省或 enabled=false 时对应组件不注册
type AppConfig struct {
	APPInfo      *APPInfo                       `yaml:"app_info" json:"app_info"`
	Logging      *logging.LoggingConfig         `yaml:"logging" json:"logging"`
	HTTPServer   *http_server.HTTPServerConfig  `yaml:"http_server" json:"http_server"`
	HTTPClients  *http_client.HTTPClientsConfig `yaml:"http_clients" json:"http_clients"`
	GRPCServer   *grpc_server.Config            `yaml:"grpc_server" json:"grpc_server"`
	GRPCClients  *grpc_client.GRPCClientsConfig `yaml:"grpc_clients" json:"grpc_clients"`
	MySQLGORM    *mysqlgorm.Config              `yaml:"mysql_gorm" json:"mysql_gorm"`
	PostgresGORM *postgresgorm.Config           `yaml:"postgres_gorm" json:"postgres_gorm"`
	Redis        *redis.Config                  `yaml:"redis" json:"redis"`
	Prometheus   *prometheus.Config             `yaml:"prometheus" json:"prometheus"`
	Telemetry    *telemetry.Config              `yaml:"telemetry" json:"telemetry"`

	// BizConfig 业务配置；加载后为 SetBizConfig 传入的指针
	BizConfig any `yaml:"biz_config" json:"biz_config"`
}

type APPInfo struct {
	APPName string `yaml:"app_name" json:"app_name"`
	Version string `yaml:"version" json:"version"`
	ENV     string `yaml:"env" json:"env"`
}

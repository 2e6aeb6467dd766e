package mysqlgorm

import "github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/gormkit"

// Config 与 postgres_gorm 同构
type Config = gormkit.Config

type DataSourceConfig = gormkit.DataSource

package postgresgorm

import "github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/gormkit"

type Config = gormkit.Config

type DataSourceConfig = gormkit.DataSource

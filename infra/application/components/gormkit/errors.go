package gormkit

import "fmt"

func errDisabled(c string) error      { return fmt.Errorf("%s component disabled", c) }
func errNoDataSources(c string) error { return fmt.Errorf("%s component has no data_sources", c) }
func errNilDataSource(c, ds string) error {
	return fmt.Errorf("%s datasource %s config is nil", c, ds)
}
func errMigrateDir(c, ds string) error {
	return fmt.Errorf("%s datasource %s migrate_enabled=true but migrate_dir empty", c, ds)
}

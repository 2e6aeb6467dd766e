package config

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
)

// Validator 配置验证器
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) ValidateAppConfig(config *AppConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.APPInfo == nil || config.APPInfo.APPName == "" {
		return fmt.Errorf("app_info.app_name is required")
	}
	if err := v.validateEnv(config.APPInfo.ENV); err != nil {
		return err
	}
	if config.MySQLGORM != nil && config.MySQLGORM.Enabled {
		if err := config.MySQLGORM.Validate(consts.COMPONENT_MYSQL_GORM); err != nil {
			return err
		}
	}
	if config.PostgresGORM != nil && config.PostgresGORM.Enabled {
		if err := config.PostgresGORM.Validate(consts.COMPONENT_POSTGRES_GORM); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateConfigFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("config file path cannot be empty")
	}
	if len(path) > 255 {
		return fmt.Errorf("config file path is too long")
	}
	if !fileExists(path) {
		return fmt.Errorf("config file does not exist: %s", path)
	}
	return nil
}

func (v *Validator) validateEnv(env string) error {
	switch env {
	case consts.ENV_PRODUCTION, consts.ENV_DEVELOPMENT, consts.ENV_TEST:
		return nil
	}
	return fmt.Errorf("running environment is not valid: %q", env)
}

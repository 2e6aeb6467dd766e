package application

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/autowire"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/hooks"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/registry"
)

type App struct {
	container        *core.Container
	lifecycleManager *core.LifecycleManager
	configManager    *config.ConfigManager

	bootOnce sync.Once
	bootErr  error

	shutdownTimeout time.Duration
}

var (
	globalApp  *App
	globalOnce sync.Once
)

// GetApp 进程级单例；运行环境取 APP_ENV，配置文件取 CONFIG_PATH。
// 业务包在 init 中通过 GetApp().SetBizConfig 挂载自己的配置结构。
func GetApp() *App {
	globalOnce.Do(func() {
		env := os.Getenv(consts.ENV_KEY_APP_ENV)
		if env == "" {
			env = consts.ENV_DEVELOPMENT
		}
		path := os.Getenv(consts.ENV_KEY_CONFIG_PATH)
		if path == "" {
			path = consts.DEFAULT_CONFIG_PATH
		}
		globalApp = NewApp(env, path)
	})
	return globalApp
}

func NewApp(env string, configPath string) *App {
	abs := configPath
	if p, err := filepath.Abs(configPath); err == nil {
		abs = p
	}
	container := core.NewContainer()
	// 使用全局 hook manager，hooks/default.go 中注册的默认 hook 才会生效
	lm := core.NewLifecycleManagerWithManager(container, hooks.GetGlobalHookManager())
	return &App{
		configManager:    config.NewConfigManager(env, abs),
		container:        container,
		lifecycleManager: lm,
		shutdownTimeout:  30 * time.Second,
	}
}

func (app *App) SetShutdownTimeout(d time.Duration) { app.shutdownTimeout = d }

// SetBizConfig 必须在 Run 之前调用，传入指针
func (app *App) SetBizConfig(b any) { app.configManager.SetBizConfig(b) }

func (app *App) Container() *core.Container { return app.container }

func (app *App) boot() error {
	app.bootOnce.Do(func() {
		if err := app.configManager.LoadConfig(); err != nil {
			app.bootErr = fmt.Errorf("load config failed: %w", err)
			return
		}
		if err := app.registerComponents(); err != nil {
			app.bootErr = fmt.Errorf("register components failed: %w", err)
			return
		}
	})
	return app.bootErr
}

// Boot 只加载配置并完成注册注入，不启动组件；供命令行子命令（如迁移）复用装配结果。
func (app *App) Boot() error { return app.boot() }

func (app *App) registerComponents() error {
	cfg := app.configManager.GetConfig()
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if err := registry.BuildAndRegisterAll(cfg, app.container); err != nil {
		return err
	}
	if err := autowire.InjectAll(app.container); err != nil {
		return fmt.Errorf("autowire failed: %w", err)
	}
	// 软依赖（例如未启用的 telemetry）允许缺失，这里只记录
	if _, err := app.container.ValidateDependencies(); err != nil {
		core.Logger().Warn("component dependency check", zap.Error(err))
	}
	return nil
}

func (app *App) GetComponent(name string) (core.Component, error) {
	return app.container.Resolve(name)
}

func (app *App) GetConfig() *config.AppConfig {
	if app.configManager == nil {
		return nil
	}
	return app.configManager.GetConfig()
}

func (app *App) AddHook(name string, phase hooks.Phase, fn hooks.HookFunc, priority int) error {
	return app.lifecycleManager.AddHook(name, phase, fn, priority)
}

// Run 监听 SIGINT/SIGTERM，收到信号后优雅停止
func (app *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.RunWithContext(ctx)
}

// RunWithContext 启动全部组件并阻塞到 ctx 结束，然后在 shutdownTimeout 内停止
func (app *App) RunWithContext(ctx context.Context) error {
	if err := app.boot(); err != nil {
		return err
	}
	if err := app.lifecycleManager.StartAll(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout)
	defer cancel()
	app.lifecycleManager.StopAll(stopCtx)
	return nil
}

func (app *App) Shutdown(ctx context.Context) {
	app.lifecycleManager.StopAll(ctx)
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

// RedisComponent 持有一个 UniversalClient，按 mode 自动选择单机、集群或哨兵。
type RedisComponent struct {
	*core.BaseComponent
	cfg    *Config
	client redis.UniversalClient
}

func NewRedisComponent(cfg *Config) *RedisComponent {
	return &RedisComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_REDIS, consts.COMPONENT_LOGGING),
		cfg:           cfg,
	}
}

// NewWithClient 包装已有客户端，Start 时跳过拨号。
func NewWithClient(client redis.UniversalClient, keyPrefix string) *RedisComponent {
	rc := NewRedisComponent(&Config{Enabled: true, KeyPrefix: keyPrefix})
	rc.client = client
	return rc
}

func (rc *RedisComponent) Start(ctx context.Context) error {
	if err := rc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if rc.client == nil {
		rc.client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:           rc.cfg.Addresses,
			DB:              rc.cfg.DB,
			Username:        rc.cfg.Username,
			Password:        rc.cfg.Password,
			MasterName:      rc.cfg.SentinelMaster,
			PoolSize:        rc.cfg.PoolSize,
			MinIdleConns:    rc.cfg.MinIdleConns,
			DialTimeout:     rc.cfg.DialTimeout,
			ReadTimeout:     rc.cfg.ReadTimeout,
			WriteTimeout:    rc.cfg.WriteTimeout,
			ConnMaxLifetime: rc.cfg.ConnMaxLifetime,
			ConnMaxIdleTime: rc.cfg.ConnMaxIdleTime,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.client.Ping(pingCtx).Err(); err != nil {
		_ = rc.client.Close()
		rc.client = nil
		_ = rc.BaseComponent.Stop(ctx)
		return fmt.Errorf("redis ping failed: %w", err)
	}

	logging.Info(ctx, "redis component started",
		zap.String("mode", rc.cfg.Mode),
		zap.Strings("addrs", rc.cfg.Addresses),
	)
	return nil
}

func (rc *RedisComponent) Stop(ctx context.Context) error {
	defer rc.BaseComponent.Stop(ctx)
	if rc.client == nil {
		return nil
	}
	err := rc.client.Close()
	rc.client = nil
	logging.Info(ctx, "redis component stopped")
	return err
}

func (rc *RedisComponent) HealthCheck() error {
	if err := rc.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	if rc.client == nil {
		return errors.New("redis client nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisComponent) Client() redis.UniversalClient { return rc.client }

// Key 拼接业务前缀
func (rc *RedisComponent) Key(parts ...string) string {
	key := rc.cfg.KeyPrefix
	for _, p := range parts {
		if key != "" {
			key += ":"
		}
		key += p
	}
	return key
}

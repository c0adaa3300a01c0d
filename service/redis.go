package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/omdwivedi00/Iden-hide/config"
	"github.com/omdwivedi00/Iden-hide/model"
	"github.com/omdwivedi00/Iden-hide/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisService caches sidecar records keyed by image MD5 so repeat
// uploads skip detection entirely.
type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.Redis) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetRecord returns the cached record for a key, or nil on cache miss.
func (s *RedisService) GetRecord(ctx context.Context, key string) (*model.SidecarRecord, error) {
	data, err := s.client.Get(ctx, "detect:"+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var record model.SidecarRecord
	if err := json.Unmarshal(data, &record); err != nil {
		utils.Logger.Error("failed to unmarshal cached record",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &record, nil
}

// SetRecord stores a record under the given key with the service TTL.
func (s *RedisService) SetRecord(ctx context.Context, key string, record *model.SidecarRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, "detect:"+key, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

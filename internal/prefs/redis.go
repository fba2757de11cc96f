/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "snapcards:duration:"

type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings; a failed ping is returned so the caller
// can fall back to another backend.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Duration(ctx context.Context, player string) (int, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+player).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, ErrNotFound
	case err != nil:
		return 0, err
	}

	seconds, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt duration for %s: %w", player, err)
	}

	return seconds, nil
}

func (s *RedisStore) SetDuration(ctx context.Context, player string, seconds int) error {
	return s.client.Set(ctx, redisKeyPrefix+player, strconv.Itoa(seconds), 0).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

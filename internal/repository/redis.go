package repository

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	redistrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/redis/go-redis.v9"
)

const redisKeyPrefix = "lazytemplate:"

// RedisClient keeps the templates at Redis.
type RedisClient struct {
	baseClient redis.UniversalClient
}

// NewRedisClient connects to Redis over TLS and checks the connection.
func NewRedisClient(addr, username, password string) (RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	})
	redistrace.WrapClient(rdb, redistrace.WithServiceName("lazytemplate-redis"))

	ctx, ctxcancel := context.WithTimeout(context.Background(), time.Second)
	defer ctxcancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return RedisClient{}, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return RedisClient{
		baseClient: rdb,
	}, nil
}

// Get the payload at the key. A missing key is returned as nil.
func (rc RedisClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := rc.baseClient.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get the key '%s': %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(result)), nil
}

// Put the payload at the key.
func (rc RedisClient) Put(ctx context.Context, key string, payload io.Reader) error {
	content, err := io.ReadAll(payload)
	if err != nil {
		return fmt.Errorf("failed to read the payload: %w", err)
	}
	if err := rc.baseClient.Set(ctx, redisKey(key), content, 0).Err(); err != nil {
		return fmt.Errorf("failed to set the key '%s': %w", key, err)
	}
	return nil
}

// Delete the key.
func (rc RedisClient) Delete(ctx context.Context, key string) error {
	if err := rc.baseClient.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete the key '%s': %w", key, err)
	}
	return nil
}

// List the keys ending with the suffix.
func (rc RedisClient) List(ctx context.Context, suffix string) ([]string, error) {
	var (
		result []string
		seen   = make(map[string]struct{})
	)
	// SCAN may return a key more than once.
	iter := rc.baseClient.Scan(ctx, 0, redisKeyPrefix+"*"+suffix, 100).Iterator()
	for iter.Next(ctx) {
		key := templateKey(iter.Val())
		if _, ok := seen[key]; ok || !isTemplateKey(key, suffix) {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, key)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan the keys: %w", err)
	}
	return result, nil
}

// Close the connection.
func (rc RedisClient) Close() error {
	return rc.baseClient.Close()
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

func templateKey(key string) string {
	return strings.TrimPrefix(key, redisKeyPrefix)
}

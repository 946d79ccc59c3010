package database

import (
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
)

type redisDb struct {
	client *redis.Client
}

func NewRedis(options *redis.Options) (Database, error) {
	client := redis.NewClient(options)

	if _, err := client.Ping().Result(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "unable to ping redis at %s", options.Addr)
	}

	return &redisDb{client: client}, nil
}

func (r *redisDb) Get(key string) (data string, err error) {
	data, err = r.client.Get(key).Result()

	if err == redis.Nil {
		return "", ErrNotFound
	}

	if err != nil {
		return "", errors.Wrapf(err, "unable to get '%s'", key)
	}

	return data, nil
}

func (r *redisDb) Set(key string, data string, expiration time.Duration) (err error) {
	if err = r.client.Set(key, data, expiration).Err(); err != nil {
		return errors.Wrapf(err, "unable to set '%s'", key)
	}

	return nil
}

func (r *redisDb) Delete(key string) (err error) {
	if err = r.client.Del(key).Err(); err != nil {
		return errors.Wrapf(err, "unable to delete '%s'", key)
	}

	return nil
}

func (r *redisDb) Close() error {
	return r.client.Close()
}

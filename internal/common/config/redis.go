package config

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes a single node, cluster or sentinel redis deployment.
type RedisConfig struct {
	// Seed list of host:port addresses; more than one means a cluster unless MasterName is set
	Addrs []string `validate:"required,min=1"`
	DB    int      `validate:"gte=0,lte=16"`
	// Name of the sentinel master set
	MasterName      string
	Password        string
	PoolSize        int `validate:"required"`
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

func (rc RedisConfig) AsUniversalOptions() *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:           rc.Addrs,
		DB:              rc.DB,
		MasterName:      rc.MasterName,
		Password:        rc.Password,
		PoolSize:        rc.PoolSize,
		MaxRetries:      rc.MaxRetries,
		MinRetryBackoff: rc.MinRetryBackoff,
		MaxRetryBackoff: rc.MaxRetryBackoff,
		DialTimeout:     rc.DialTimeout,
		ReadTimeout:     rc.ReadTimeout,
		WriteTimeout:    rc.WriteTimeout,
	}
}

// NewClient returns a client for the configured deployment type.
func (rc RedisConfig) NewClient() redis.UniversalClient {
	return redis.NewUniversalClient(rc.AsUniversalOptions())
}

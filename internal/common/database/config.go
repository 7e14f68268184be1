package database

import "time"

type PostgresConfig struct {
	// libpq key/value connection parameters, e.g. host, port, user, password, dbname, sslmode.
	Connection      map[string]string `validate:"required"`
	MaxOpenConns    int32
	MaxConnIdleTime time.Duration
}

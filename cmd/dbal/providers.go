package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"

	"github.com/apileon/dbal"
	"github.com/apileon/dbal/database/migrations"
	"github.com/apileon/dbal/database/seeders"
	"github.com/apileon/dbal/internal/logger"
	"github.com/apileon/dbal/lock"
	lockredis "github.com/apileon/dbal/lock/redis"
	"github.com/apileon/dbal/migration"
)

type configPath string

type connectionName string

// Application holds what the commands need.
type Application struct {
	Runner *migration.Runner
	Log    zerolog.Logger
	Pusher *Pusher
}

// Pusher sends the statement metrics of one run to a Pushgateway.
type Pusher struct {
	url string
	job string
	reg *prometheus.Registry
}

// Push is a no-op without a configured gateway.
func (p *Pusher) Push() error {
	if p == nil || p.url == "" {
		return nil
	}
	if err := push.New(p.url, p.job).Gatherer(p.reg).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", p.url, err)
	}
	return nil
}

func provideFile(p configPath) (*dbal.File, error) {
	return dbal.LoadFile(string(p))
}

func provideLogger(f *dbal.File) zerolog.Logger {
	return logger.New(logger.Config{
		Level:  f.Log.Level,
		Format: f.Log.Format,
		Output: os.Stderr,
	})
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideMetrics(reg *prometheus.Registry) (*dbal.Metrics, error) {
	return dbal.NewMetrics(reg)
}

func providePusher(f *dbal.File, reg *prometheus.Registry) *Pusher {
	return &Pusher{url: f.Metrics.Pushgateway, job: f.Metrics.Job, reg: reg}
}

// provideConnection opens the selected connection. Includes cleanup.
func provideConnection(f *dbal.File, name connectionName, log zerolog.Logger, m *dbal.Metrics) (*dbal.Connection, func(), error) {
	cfg, err := f.Connection(string(name))
	if err != nil {
		return nil, nil, err
	}
	conn, err := dbal.New(cfg, dbal.WithLogger(log), dbal.WithMetrics(m))
	if err != nil {
		return nil, nil, err
	}
	if err := conn.Open(context.Background()); err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := conn.Disconnect(); err != nil {
			log.Error().Err(err).Msg("closing connection")
		}
	}
	return conn, cleanup, nil
}

// provideLocker returns a Redis lock when one is configured, otherwise an
// in-process one.
func provideLocker(f *dbal.File, log zerolog.Logger) (lock.Locker, func(), error) {
	if f.Lock.RedisAddr == "" {
		return lock.NewLocal(), func() {}, nil
	}
	l, cleanup, err := lockredis.NewClient(lockredis.Options{
		Addr:     f.Lock.RedisAddr,
		Password: f.Lock.RedisPassword,
		DB:       f.Lock.RedisDB,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return l, cleanup, nil
}

func provideSource(f *dbal.File) migration.Source {
	return migration.Sources(migrations.Registry, migration.Dir(f.Resolve(f.Migrations.Dir)))
}

func provideRunner(conn *dbal.Connection, src migration.Source, f *dbal.File, log zerolog.Logger, l lock.Locker) *migration.Runner {
	return migration.NewRunner(conn, src,
		migration.WithTable(f.Migrations.Table),
		migration.WithLogger(log),
		migration.WithLocker(l, 0),
		migration.WithSeeder(seeders.DatabaseSeeder()),
	)
}

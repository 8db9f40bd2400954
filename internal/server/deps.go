package server

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/config"
	"github.com/dmitrijs2005/lfras/internal/server/lock"
	"github.com/dmitrijs2005/lfras/internal/server/notify"
	"github.com/dmitrijs2005/lfras/internal/server/storage"
)

// closeFunc releases a resource opened during start-up.
type closeFunc func() error

// NewObjectStore returns the configured object store.
func NewObjectStore(ctx context.Context, c *config.Config) (storage.ObjectStore, error) {
	switch c.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil
	case config.StorageS3, "":
		s, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Storage)
	}
}

// NewDispatcher returns the configured notification transport and a
// function that releases it.
func NewDispatcher(c *config.Config, l logging.Logger) (notify.Dispatcher, closeFunc, error) {
	noop := func() error { return nil }

	switch c.Notifier {
	case config.NotifierLog, "":
		return notify.NewLogDispatcher(l), noop, nil
	case config.NotifierSMTP:
		return notify.NewSMTPDispatcher(notify.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.MailFrom,
		}), noop, nil
	case config.NotifierAMQP:
		d, err := notify.NewAMQPDispatcher(c.AMQPURL, c.AMQPQueue, l)
		if err != nil {
			return nil, nil, fmt.Errorf("amqp init error: %w", err)
		}
		return d, d.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown notifier %q", c.Notifier)
	}
}

// NewLocker returns a Redis run lock when a Redis URL is set, otherwise a
// lock that is always granted.
func NewLocker(ctx context.Context, c *config.Config) (lock.Locker, closeFunc, error) {
	if c.RedisURL == "" {
		return lock.Noop{}, func() error { return nil }, nil
	}
	l, client, err := lock.NewRedisLockerFromURL(ctx, c.RedisURL, c.LockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis init error: %w", err)
	}
	return l, client.Close, nil
}

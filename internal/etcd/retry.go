package etcd

import (
	"context"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/submitq/internal/retry"
)

// NewEtcdClientWithRetry creates a new etcd client with retry logic
func NewEtcdClientWithRetry(ctx context.Context, dsn string) (*EtcdClient, error) {
	if _, err := parseEtcdDSN(dsn); err != nil {
		return nil, err
	}
	config := retry.EtcdDefaults()

	var client *EtcdClient
	err := retry.WithOperation(ctx, config, func(ctx context.Context) error {
		var attemptErr error
		client, attemptErr = NewEtcdClient(dsn)
		if attemptErr != nil {
			return attemptErr
		}

		// clientv3.New does not dial eagerly, so probe with a read
		if _, testErr := client.Get(ctx, path.Join(client.Prefix(), "healthcheck")); testErr != nil {
			_ = client.Close()
			return testErr
		}

		return nil
	}, "etcd connect")

	if err != nil {
		logrus.WithError(err).Error("Failed to establish etcd connection after all retries")
		return nil, err
	}

	return client, nil
}

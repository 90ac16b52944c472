package settings

import (
	"context"
	"path"

	"github.com/cybertec-postgresql/submitq/internal/etcd"
)

// Etcd stores blobs as etcd keys below the DSN prefix
type Etcd struct {
	client *etcd.EtcdClient
}

// OpenEtcd connects with retry
func OpenEtcd(ctx context.Context, dsn string) (*Etcd, error) {
	client, err := etcd.NewEtcdClientWithRetry(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Etcd{client: client}, nil
}

func (e *Etcd) key(k string) string {
	return path.Join(e.client.Prefix(), k)
}

func (e *Etcd) Get(ctx context.Context, key string) ([]byte, error) {
	pair, err := e.client.Get(ctx, e.key(key))
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, ErrNotFound
	}
	return pair.Value, nil
}

func (e *Etcd) Set(ctx context.Context, key string, value []byte) error {
	_, err := e.client.Put(ctx, e.key(key), value)
	return err
}

func (e *Etcd) Close() error {
	return e.client.Close()
}

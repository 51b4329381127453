package driver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/natsclient"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
)

// kvDriver mirrors the action state into a NATS JetStream key-value
// bucket: one key for the latest measurement, one for the active alert.
// Downstream dashboards watch the bucket instead of polling the engine.
type kvDriver struct {
	client    *natsclient.Client
	bucket    string
	keyPrefix string
	logger    *slog.Logger

	mu    sync.Mutex
	kv    jetstream.KeyValue
	stats stats
}

func newKVDriver(params map[string]any, deps node.Dependencies) (Driver, error) {
	bucket, err := node.StringParam(params, "bucket")
	if err != nil {
		return nil, err
	}
	keyPrefix, err := node.OptionalStringParam(params, "key_prefix", "action")
	if err != nil {
		return nil, err
	}
	if deps.NATS == nil {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: NATS client required by kv driver", errors.ErrMissingConfig),
			"kv_driver", "create", "checking dependencies")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &kvDriver{
		client:    deps.NATS,
		bucket:    bucket,
		keyPrefix: keyPrefix,
		logger:    logger.With("driver", KindKV, "bucket", bucket),
	}, nil
}

func (d *kvDriver) Initialize(ctx context.Context) error {
	kv, err := d.client.KeyValue(ctx, d.bucket)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.kv = kv
	d.mu.Unlock()
	return nil
}

func (d *kvDriver) put(ctx context.Context, key string, value any) error {
	d.mu.Lock()
	kv := d.kv
	d.mu.Unlock()
	if kv == nil {
		d.stats.recordFailure()
		return errors.WrapDriver(errors.ErrDriverUnavailable, "kv_driver", "put", "checking bucket")
	}

	data, err := json.Marshal(value)
	if err != nil {
		d.stats.recordFailure()
		return errors.WrapDriver(err, "kv_driver", "put", "marshaling value")
	}
	if _, err := kv.Put(ctx, d.keyPrefix+"."+key, data); err != nil {
		d.stats.recordFailure()
		return errors.WrapDriver(err, "kv_driver", "put", "writing key")
	}

	d.stats.recordSuccess()
	return nil
}

func (d *kvDriver) UpdateAction(ctx context.Context, m Measurement) error {
	return d.put(ctx, "measurement", m)
}

func (d *kvDriver) ShowAlert(ctx context.Context, a Alert) error {
	return d.put(ctx, "alert", a)
}

func (d *kvDriver) ClearAction(ctx context.Context) error {
	d.mu.Lock()
	kv := d.kv
	d.mu.Unlock()
	if kv == nil {
		return errors.WrapDriver(errors.ErrDriverUnavailable, "kv_driver", "clear", "checking bucket")
	}

	err := kv.Delete(ctx, d.keyPrefix+".alert")
	if err != nil && !stderrors.Is(err, jetstream.ErrKeyNotFound) {
		d.stats.recordFailure()
		return errors.WrapDriver(err, "kv_driver", "clear", "deleting alert key")
	}
	return nil
}

func (d *kvDriver) Status() Status {
	d.mu.Lock()
	initialized := d.kv != nil
	d.mu.Unlock()

	status := Status{
		Kind:    KindKV,
		Healthy: initialized && d.client.IsConnected(),
		Details: map[string]any{"bucket": d.bucket, "key_prefix": d.keyPrefix},
	}
	d.stats.fill(&status)
	return status
}

func (d *kvDriver) Shutdown(context.Context) error {
	d.mu.Lock()
	d.kv = nil
	d.mu.Unlock()
	return nil
}

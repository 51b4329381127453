package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
)

// kafkaDriver appends measurement and alert documents to a Kafka topic,
// giving downstream consumers a durable, ordered event log. Records are
// keyed by source node id so one node's history stays in one partition.
type kafkaDriver struct {
	seeds  []string
	topic  string
	logger *slog.Logger

	mu     sync.Mutex
	client *kgo.Client
	stats  stats
}

func newKafkaDriver(params map[string]any, deps node.Dependencies) (Driver, error) {
	seeds, err := node.StringSliceParam(params, "brokers")
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: brokers must not be empty", errors.ErrInvalidConfig),
			"kafka_driver", "create", "checking brokers")
	}
	topic, err := node.StringParam(params, "topic")
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &kafkaDriver{
		seeds:  seeds,
		topic:  topic,
		logger: logger.With("driver", KindKafka, "topic", topic),
	}, nil
}

func (d *kafkaDriver) Initialize(context.Context) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(d.seeds...),
		kgo.DefaultProduceTopic(d.topic),
		kgo.ClientID("photoacoustic-action"),
	)
	if err != nil {
		return errors.WrapDriver(err, "kafka_driver", "initialize", "creating producer")
	}

	d.mu.Lock()
	d.client = client
	d.mu.Unlock()
	return nil
}

func (d *kafkaDriver) produce(ctx context.Context, event, key string, payload any) error {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		d.stats.recordFailure()
		return errors.WrapDriver(errors.ErrDriverUnavailable, "kafka_driver", "produce", "checking producer")
	}

	value, err := json.Marshal(payload)
	if err != nil {
		d.stats.recordFailure()
		return errors.WrapDriver(err, "kafka_driver", "produce", "marshaling payload")
	}

	record := &kgo.Record{
		Key:     []byte(key),
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: "event", Value: []byte(event)}},
	}
	if err := client.ProduceSync(ctx, record).FirstErr(); err != nil {
		d.stats.recordFailure()
		return errors.WrapDriver(err, "kafka_driver", "produce", fmt.Sprintf("producing %s", event))
	}

	d.stats.recordSuccess()
	return nil
}

func (d *kafkaDriver) UpdateAction(ctx context.Context, m Measurement) error {
	return d.produce(ctx, "measurement", m.SourceNodeID, m)
}

func (d *kafkaDriver) ShowAlert(ctx context.Context, a Alert) error {
	return d.produce(ctx, "alert", a.Kind, a)
}

func (d *kafkaDriver) ClearAction(ctx context.Context) error {
	return d.produce(ctx, "clear", "clear", map[string]any{"cleared": true})
}

func (d *kafkaDriver) Status() Status {
	d.mu.Lock()
	initialized := d.client != nil
	d.mu.Unlock()

	status := Status{
		Kind:    KindKafka,
		Healthy: initialized,
		Details: map[string]any{"topic": d.topic, "brokers": d.seeds},
	}
	d.stats.fill(&status)
	return status
}

func (d *kafkaDriver) Shutdown(context.Context) error {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.mu.Unlock()

	if client != nil {
		client.Close()
	}
	return nil
}

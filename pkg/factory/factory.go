package factory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"mercator-hq/tokenmeter/pkg/config"
	"mercator-hq/tokenmeter/pkg/pricing"
	"mercator-hq/tokenmeter/pkg/publisher"
	"mercator-hq/tokenmeter/pkg/recorder"
	"mercator-hq/tokenmeter/pkg/store"
	"mercator-hq/tokenmeter/pkg/telemetry/metrics"
	"mercator-hq/tokenmeter/pkg/telemetry/tracing"
	"mercator-hq/tokenmeter/pkg/usage"
)

// Metrics backend names.
const (
	MetricsCloudWatch = "cloudwatch"
	MetricsPrometheus = "prometheus"
	MetricsLog        = "log"
)

// Option injects clients, mostly for tests and local runs.
type Option func(*builder)

// WithAWSConfig skips loading the AWS configuration.
func WithAWSConfig(c aws.Config) Option {
	return func(b *builder) { b.loaded = &c }
}

// WithBedrockClient replaces the Bedrock runtime client.
func WithBedrockClient(c recorder.BedrockAPI) Option {
	return func(b *builder) { b.bedrock = c }
}

// WithInvoker replaces the model invoker entirely.
func WithInvoker(inv recorder.Invoker) Option {
	return func(b *builder) { b.invoker = inv }
}

// WithCloudWatchClient replaces the CloudWatch client.
func WithCloudWatchClient(c publisher.CloudWatchAPI) Option {
	return func(b *builder) { b.cloudWatch = c }
}

// WithDynamoClient replaces the DynamoDB client.
func WithDynamoClient(c store.DynamoAPI) Option {
	return func(b *builder) { b.dynamo = c }
}

// WithRedisClient replaces the Redis client.
func WithRedisClient(c redis.UniversalClient) Option {
	return func(b *builder) { b.redis = c }
}

// WithRegistry registers Prometheus metrics on r instead of a new registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(b *builder) { b.registry = r }
}

type builder struct {
	cfg *config.Config

	once    sync.Once
	loaded  *aws.Config
	loadErr error

	bedrock    recorder.BedrockAPI
	invoker    recorder.Invoker
	cloudWatch publisher.CloudWatchAPI
	dynamo     store.DynamoAPI
	redis      redis.UniversalClient
	registry   *prometheus.Registry
}

func newBuilder(cfg *config.Config, opts []Option) *builder {
	b := &builder{cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// aws loads the AWS configuration once.
func (b *builder) aws(ctx context.Context) (aws.Config, error) {
	b.once.Do(func() {
		if b.loaded != nil {
			return
		}
		c, err := LoadAWSConfig(ctx, &b.cfg.AWS)
		if err != nil {
			b.loadErr = err
			return
		}
		b.loaded = &c
	})
	if b.loadErr != nil {
		return aws.Config{}, b.loadErr
	}
	return *b.loaded, nil
}

// NewPricingTable builds the price table: the known models, the cost model
// preset as default, custom prices, then the optional pricing file. The
// watcher is non-nil only when cfg.Watch is set.
func NewPricingTable(cfg *config.PricingConfig) (*pricing.Table, *pricing.Watcher, error) {
	table := pricing.DefaultTable(cfg.CostModel)

	base := maps.Clone(pricing.KnownModels)
	for id, p := range cfg.Custom {
		price := pricing.Price{InputPerMillion: p.InputPerMillion, OutputPerMillion: p.OutputPerMillion}
		if err := table.Register(id, price); err != nil {
			return nil, nil, fmt.Errorf("pricing.custom[%s]: %w", id, err)
		}
		base[id] = price
	}

	if cfg.File == "" {
		return table, nil, nil
	}
	f, err := pricing.LoadFile(cfg.File)
	if err != nil {
		return nil, nil, err
	}
	if err := f.Apply(table, base); err != nil {
		return nil, nil, fmt.Errorf("failed to apply pricing file %q: %w", cfg.File, err)
	}

	var w *pricing.Watcher
	if cfg.Watch {
		w = pricing.NewWatcher(cfg.File, table, base)
	}
	return table, w, nil
}

// NewStore opens the configured store. It returns nil when the store is
// disabled.
func NewStore(ctx context.Context, cfg *config.Config, opts ...Option) (usage.Store, error) {
	return newBuilder(cfg, opts).store(ctx)
}

func (b *builder) store(ctx context.Context) (usage.Store, error) {
	sc := &b.cfg.Store
	if !sc.Enabled {
		return nil, nil
	}
	opts := []store.Option{
		store.WithRetentionDays(sc.RetentionDays),
		store.WithBatchSize(sc.BatchSize),
	}

	var (
		s   usage.Store
		err error
	)
	switch sc.Backend {
	case store.BackendDynamoDB:
		client := b.dynamo
		if client == nil {
			awsCfg, err := b.aws(ctx)
			if err != nil {
				return nil, err
			}
			client = NewDynamoClient(awsCfg, &b.cfg.AWS)
		}
		s = store.NewDynamoStore(client, sc.DynamoDB.TableName, opts...)

	case store.BackendSQLite:
		s, err = store.NewSQLiteStore(&sc.SQLite, opts...)

	case store.BackendRedis:
		client := b.redis
		if client == nil {
			client = redis.NewClient(&redis.Options{
				Addr:     sc.Redis.Addr,
				Password: sc.Redis.Password,
				DB:       sc.Redis.DB,
			})
		}
		s = store.NewRedisStore(client, sc.Redis.KeyPrefix, opts...)

	case store.BackendMemory:
		s = store.NewMemoryStore(opts...)

	default:
		return nil, fmt.Errorf("unsupported store backend %q (supported: dynamodb, sqlite, redis, memory)", sc.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", sc.Backend, err)
	}

	slog.Debug("usage store opened", "backend", sc.Backend, "retention_days", sc.RetentionDays)
	return s, nil
}

// NewPublisher creates the metrics publisher over the configured backends.
// The CloudWatch backend is also returned, when configured, for alarms and
// statistics. Both are nil when publishing is disabled.
func NewPublisher(ctx context.Context, cfg *config.Config, collector *metrics.Collector, opts ...Option) (*publisher.Publisher, *publisher.CloudWatchBackend, error) {
	return newBuilder(cfg, opts).publisher(ctx, collector)
}

func (b *builder) publisher(ctx context.Context, collector *metrics.Collector) (*publisher.Publisher, *publisher.CloudWatchBackend, error) {
	pc := &b.cfg.Metrics
	if !pc.Enabled {
		return nil, nil, nil
	}

	multi := publisher.NewMultiBackend()
	var cw *publisher.CloudWatchBackend
	for _, name := range pc.Backends {
		switch name {
		case MetricsCloudWatch:
			client := b.cloudWatch
			if client == nil {
				awsCfg, err := b.aws(ctx)
				if err != nil {
					return nil, nil, err
				}
				client = NewCloudWatchClient(awsCfg, &b.cfg.AWS)
			}
			cw = publisher.NewCloudWatchBackend(client, b.cfg.AWS.Region)
			multi.Add(name, cw)

		case MetricsPrometheus:
			if collector == nil || !collector.Enabled() {
				return nil, nil, fmt.Errorf("metrics backend %q requires telemetry.metrics.enabled", name)
			}
			multi.Add(name, publisher.NewPrometheusBackend(collector.Usage()))

		case MetricsLog:
			multi.Add(name, publisher.NewLogBackend(nil, slog.LevelInfo))

		default:
			return nil, nil, fmt.Errorf("unsupported metrics backend %q (supported: cloudwatch, prometheus, log)", name)
		}
	}
	if multi.Len() == 0 {
		return nil, nil, fmt.Errorf("metrics publishing is enabled but no backends are configured")
	}

	return publisher.New(multi, pc.Namespace), cw, nil
}

// NewRecorder creates a recorder invoking models through Bedrock unless an
// invoker is injected.
func NewRecorder(ctx context.Context, cfg *config.Config, prices *pricing.Table, tracer *tracing.Tracer, opts ...Option) (*recorder.Recorder, error) {
	return newBuilder(cfg, opts).recorder(ctx, prices, tracer)
}

func (b *builder) recorder(ctx context.Context, prices *pricing.Table, tracer *tracing.Tracer) (*recorder.Recorder, error) {
	inv := b.invoker
	if inv == nil {
		client := b.bedrock
		if client == nil {
			awsCfg, err := b.aws(ctx)
			if err != nil {
				return nil, err
			}
			client = NewBedrockClient(awsCfg, &b.cfg.AWS)
		}
		inv = recorder.NewBedrockInvoker(client)
	}

	rc := &b.cfg.Recorder
	opts := []recorder.Option{
		recorder.WithDefaults(rc.DefaultAgentID, rc.DefaultModel),
		recorder.WithTimeout(rc.Timeout),
	}
	if tracer != nil {
		opts = append(opts, recorder.WithTracer(tracer))
	}
	return recorder.New(inv, prices, opts...), nil
}

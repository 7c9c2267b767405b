package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jo-hoe/roadwatch/internal/backend/commandstructure"
	"github.com/jo-hoe/roadwatch/internal/backend/counter"
	"github.com/jo-hoe/roadwatch/internal/backend/database"
	"github.com/jo-hoe/roadwatch/internal/backend/detection"
	"github.com/jo-hoe/roadwatch/internal/backend/events"
	"github.com/jo-hoe/roadwatch/internal/backend/geocode"
	"github.com/jo-hoe/roadwatch/internal/backend/ledger"
	"github.com/jo-hoe/roadwatch/internal/backend/metrics"
	"github.com/jo-hoe/roadwatch/internal/backend/sightinglog"
	"github.com/jo-hoe/roadwatch/internal/backend/storage"
	"github.com/jo-hoe/roadwatch/internal/backend/video"

	// registers the preprocessing commands
	_ "github.com/jo-hoe/roadwatch/internal/backend/commands"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

var (
	ErrInvalidFrame = errors.New("invalid frame")
	ErrInvalidImage = errors.New("invalid image")
	// ErrSightingLog is returned when the location could not be appended to the sighting log
	ErrSightingLog = errors.New("error writing to location log file")
)

type CoreService struct {
	config *ServiceConfig

	databaseService database.DatabaseService
	detector        detection.Detector
	invoker         *commandstructure.CommandInvoker
	reverser        geocode.Reverser
	sightings       *sightinglog.Log
	store           storage.Store
	recorder        ledger.Recorder
	publisher       events.Publisher
	extractor       video.Extractor
	metrics         *metrics.Metrics

	tally    counter.Tally
	newTally func(sessionID string) counter.Tally
	sessions cmap.ConcurrentMap[string, counter.Tally]

	redisClient redis.UniversalClient
	closers     []func() error
}

// Option replaces one of the collaborators CoreService would otherwise build from config
type Option func(*CoreService)

func WithDatabase(db database.DatabaseService) Option {
	return func(s *CoreService) { s.databaseService = db }
}

func WithDetector(d detection.Detector) Option {
	return func(s *CoreService) { s.detector = d }
}

func WithReverser(r geocode.Reverser) Option {
	return func(s *CoreService) { s.reverser = r }
}

func WithStore(store storage.Store) Option {
	return func(s *CoreService) { s.store = store }
}

func WithRecorder(r ledger.Recorder) Option {
	return func(s *CoreService) { s.recorder = r }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *CoreService) { s.publisher = p }
}

func WithExtractor(e video.Extractor) Option {
	return func(s *CoreService) { s.extractor = e }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *CoreService) { s.metrics = m }
}

// WithRedisClient makes the redis counter backend use client instead of dialing counter.redis.address
func WithRedisClient(client redis.UniversalClient) Option {
	return func(s *CoreService) { s.redisClient = client }
}

func NewCoreService(ctx context.Context, config *ServiceConfig, opts ...Option) (*CoreService, error) {
	service := &CoreService{
		config:   config,
		sessions: cmap.New[counter.Tally](),
	}
	for _, opt := range opts {
		opt(service)
	}

	if err := service.init(ctx); err != nil {
		_ = service.Close()
		return nil, err
	}
	return service, nil
}

func (service *CoreService) init(ctx context.Context) (err error) {
	config := service.config

	invoker, err := commandstructure.NewCommandInvokerFromConfig(commandstructure.DefaultRegistry, toCommandConfigs(config.Commands))
	if err != nil {
		return fmt.Errorf("failed to build preprocessing pipeline: %w", err)
	}
	service.invoker = invoker

	if service.databaseService == nil {
		if service.databaseService, err = getDatabaseService(config); err != nil {
			return err
		}
	}
	service.closers = append(service.closers, service.databaseService.Close)

	if service.detector == nil {
		if service.detector, err = newDetector(config.Detector); err != nil {
			return err
		}
	}
	if service.reverser == nil {
		if service.reverser, err = newReverser(config.Geocoder); err != nil {
			return err
		}
	}
	if service.store == nil {
		if service.store, err = newStore(ctx, config.Storage); err != nil {
			return err
		}
	}
	if service.recorder == nil {
		if service.recorder, err = newRecorder(ctx, config.Ledger); err != nil {
			return err
		}
	}
	if closer, ok := service.recorder.(interface{ Close() error }); ok {
		service.closers = append(service.closers, closer.Close)
	}
	if service.publisher == nil {
		if service.publisher, err = newPublisher(config.Events); err != nil {
			return err
		}
	}
	service.closers = append(service.closers, service.publisher.Close)

	if service.extractor == nil {
		service.extractor = video.NewFFmpegExtractor(config.Video.FrameStride, config.Video.Quality)
	}
	if service.metrics == nil {
		service.metrics = metrics.New()
	}

	service.sightings = sightinglog.New(config.SightingLog.Path)

	if err := service.initCounter(ctx); err != nil {
		return err
	}

	slog.Info("core service initialized",
		"commands", service.invoker.Len(),
		"counter", config.Counter.Backend,
		"counterScope", config.Counter.Scope,
		"geocoder", config.Geocoder.Provider,
		"storage", config.Storage.Backend,
		"ledger", config.Ledger.Backend,
		"events", config.Events.Backend)
	return nil
}

func (service *CoreService) initCounter(ctx context.Context) error {
	cfg := service.config.Counter
	switch cfg.Backend {
	case "redis":
		if service.redisClient == nil {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			service.redisClient = client
			service.closers = append(service.closers, client.Close)
		}
		if err := service.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		client := service.redisClient
		service.tally = counter.NewRedisTally(client, cfg.Redis.Prefix)
		service.newTally = func(sessionID string) counter.Tally {
			return counter.NewRedisTally(client, cfg.Redis.Prefix+":session:"+sessionID)
		}
	default:
		var opts []counter.Option
		if cfg.MaxFrames > 0 {
			opts = append(opts, counter.WithMaxFrames(cfg.MaxFrames))
		}
		service.tally = counter.NewMemoryTally(opts...)
		service.newTally = func(string) counter.Tally {
			return counter.NewMemoryTally(opts...)
		}
	}
	return nil
}

func toCommandConfigs(configs []CommandConfig) []commandstructure.CommandConfig {
	result := make([]commandstructure.CommandConfig, 0, len(configs))
	for _, c := range configs {
		result = append(result, commandstructure.CommandConfig{Name: c.Name, Params: c.Params})
	}
	return result
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

func newDetector(cfg Detector) (detection.Detector, error) {
	return detection.NewHTTPDetector(cfg.Endpoint,
		detection.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}),
		detection.WithClassNames(cfg.ClassNames),
		detection.WithConfidenceThreshold(cfg.ConfidenceThreshold))
}

func newReverser(cfg Geocoder) (geocode.Reverser, error) {
	switch cfg.Provider {
	case "google":
		return geocode.NewGoogleReverser(cfg.APIKey, cfg.Language)
	case "none":
		return geocode.NoopReverser{}, nil
	default:
		return geocode.NewNominatimReverser(cfg.URL, cfg.UserAgent, cfg.Language, nil), nil
	}
}

func newStore(ctx context.Context, cfg Storage) (storage.Store, error) {
	if cfg.Backend == "minio" {
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:        cfg.Minio.Endpoint,
			AccessKeyID:     cfg.Minio.AccessKeyID,
			SecretAccessKey: cfg.Minio.SecretAccessKey,
			Bucket:          cfg.Minio.Bucket,
			Region:          cfg.Minio.Region,
			UseSSL:          cfg.Minio.UseSSL,
		})
	}
	return storage.NewFileStore(cfg.Directory)
}

func newRecorder(ctx context.Context, cfg Ledger) (ledger.Recorder, error) {
	if cfg.Backend != "ethereum" {
		return ledger.Noop{}, nil
	}
	return ledger.NewEthereumRecorder(ctx, ledger.EthereumConfig{
		RPCURL:          cfg.RPCURL,
		ContractAddress: cfg.ContractAddress,
		PrivateKey:      cfg.PrivateKey,
		ChainID:         cfg.ChainID,
		Method:          cfg.Method,
		WaitMined:       cfg.WaitMined,
	})
}

func newPublisher(cfg Events) (events.Publisher, error) {
	if cfg.Backend != "mqtt" {
		return events.Noop{}, nil
	}
	return events.NewMQTTPublisher(events.MQTTConfig{
		Broker:   cfg.Broker,
		ClientID: cfg.ClientID,
		Topic:    cfg.Topic,
		Username: cfg.Username,
		Password: cfg.Password,
		QoS:      cfg.QoS,
		Retained: cfg.Retained,
	})
}

func (service *CoreService) Metrics() *metrics.Metrics {
	return service.metrics
}

func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// Close releases every backend connection, in reverse order of creation
func (service *CoreService) Close() error {
	var err error
	for i := len(service.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, service.closers[i]())
	}
	service.closers = nil
	return err
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/podushkina/meetscribe/internal/blob"
	"github.com/podushkina/meetscribe/internal/config"
	"github.com/podushkina/meetscribe/internal/duration"
	"github.com/podushkina/meetscribe/internal/meeting"
	"github.com/podushkina/meetscribe/internal/observability"
	"github.com/podushkina/meetscribe/internal/openai"
	"github.com/podushkina/meetscribe/internal/pipeline"
	"github.com/podushkina/meetscribe/internal/queue"
	"github.com/podushkina/meetscribe/internal/quota"
	"github.com/podushkina/meetscribe/internal/storage"
	"github.com/podushkina/meetscribe/internal/taskstore"
)

// App holds the long-lived collaborators shared by the server and the CLI.
type App struct {
	Config        *config.Config
	Queue         *queue.Queue
	DB            *storage.DB
	Meetings      *storage.MeetingRepository
	Subscriptions *storage.SubscriptionRepository
	Catalog       *quota.Catalog
	Guard         *quota.Guard
	Blobs         blob.Store
	Pipeline      *pipeline.Pipeline

	shutdownTracing func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, service string) (*App, error) {
	shutdown, err := observability.InitTracing(ctx, service, observability.TracingConfig{
		Exporter:    cfg.OtelExporter,
		Endpoint:    cfg.OtelEndpoint,
		Headers:     cfg.OtelHeaders,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, shutdownTracing: shutdown}

	a.Catalog, err = quota.LoadCatalog(cfg.PlansFile)
	if err != nil {
		return nil, a.closeOnError(err)
	}

	a.Queue, err = queue.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		return nil, a.closeOnError(fmt.Errorf("connect to redis: %w", err))
	}

	a.DB, err = storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, a.closeOnError(err)
	}
	a.Meetings = storage.NewMeetingRepository(a.DB, func() (string, int) {
		def := a.Catalog.Default()
		return def.Name, def.QuotaMinutes
	})
	a.Subscriptions = storage.NewSubscriptionRepository(a.DB)

	a.Guard, err = quota.NewGuard(a.Subscriptions, a.Catalog)
	if err != nil {
		return nil, a.closeOnError(err)
	}

	a.Blobs, err = newBlobStore(cfg)
	if err != nil {
		return nil, a.closeOnError(err)
	}

	client := openai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
	transcriber := openai.NewTranscriber(client)
	if cfg.TranscriptionModel != "" {
		transcriber.Model = cfg.TranscriptionModel
	}
	summarizer := openai.NewSummarizer(client)
	if cfg.SummaryModel != "" {
		summarizer.Model = cfg.SummaryModel
	}
	if cfg.SummaryPrompt != "" {
		summarizer.SystemPrompt = cfg.SummaryPrompt
	}

	a.Pipeline = &pipeline.Pipeline{
		Duration:    duration.Default(),
		Quota:       a.Guard,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Meetings:    a.Meetings,
		Tasks:       func(owner string) pipeline.TaskWriter { return a.Tasks(owner) },
		SettleDelay: cfg.SettleDelay,
	}
	// Clients following the task feed refresh their meeting lists on this.
	a.Pipeline.AddListener(func(ctx context.Context, m meeting.Meeting) error {
		return a.Queue.Notify(ctx, m.OwnerID)
	})

	return a, nil
}

// Tasks returns the task store of one owner.
func (a *App) Tasks(owner string) *taskstore.Store {
	return taskstore.New(a.Queue, owner, taskstore.WithPollInterval(a.Config.PollInterval))
}

func newBlobStore(cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "", "local":
		return blob.NewLocalStore(cfg.BlobDir)
	case "minio":
		return blob.NewMinIOStore(blob.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.MinIORegion,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q (use local or minio)", cfg.BlobBackend)
	}
}

func (a *App) closeOnError(err error) error {
	if cerr := a.Close(context.Background()); cerr != nil {
		log.Printf("app: cleanup after init failure: %v", cerr)
	}
	return err
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}

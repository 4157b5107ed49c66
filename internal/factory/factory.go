package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-assistant/internal/analytics"
	"chat-assistant/internal/client"
	"chat-assistant/internal/config"
	"chat-assistant/internal/conversation"
	"chat-assistant/internal/emailcheck"
	"chat-assistant/internal/events"
	"chat-assistant/internal/llm"
	"chat-assistant/internal/mailer"
	"chat-assistant/internal/matcher"
	"chat-assistant/internal/moderation"
	"chat-assistant/internal/otp"
	"chat-assistant/internal/repository/memory"
	redisrepo "chat-assistant/internal/repository/redis"
	"chat-assistant/internal/responder"
	"chat-assistant/internal/search"
	"chat-assistant/internal/service"
	"chat-assistant/internal/storage"
	"chat-assistant/internal/tls"
	"chat-assistant/internal/transcript"
	"chat-assistant/internal/util"
)

const analyticsFlushInterval = 10 * time.Second

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	awsClients       *client.AWSClients

	// Domain components
	catalog   *matcher.Catalog
	sender    mailer.Sender
	provider  llm.Provider
	moderator llm.Moderator
	validator *emailcheck.Validator
	recorder  *analytics.ClickHouseRecorder

	sessionStore   service.SessionStore
	controller     *conversation.Controller
	serviceFactory *service.ServiceFactory

	stopAnalytics context.CancelFunc
	analyticsDone chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(util.LogOptions{
		Environment: cfg.Environment,
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		FilePath:    cfg.Logging.FilePath,
	})

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(cfg.Server)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeComponents(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("session_store", cfg.Session.Store),
		util.String("mail_provider", cfg.Mail.Provider),
		util.Bool("llm_enabled", factory.provider != nil),
	)

	return factory, nil
}

// initializeClients initializes the enabled external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error
	logger := util.Get()

	// Redis backs sessions and OTP send limits when selected
	if f.config.Session.Store == "redis" {
		if c, err := client.NewRedisClient(f.config, logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
			util.Info("Redis client initialized and healthy")
		}
	}

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, logger); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if c, err := client.NewElasticsearchClient(f.config, logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(f.config, logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
			if err := c.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	// AWS (SES mail and S3 transcripts)
	if f.config.Mail.Provider == "ses" || f.config.AWS.S3BucketName != "" {
		if c, err := client.NewAWSClients(ctx, f.config, logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("aws: %w", err))
		} else {
			f.awsClients = c
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeComponents builds the conversation pipeline from the clients that came up
func (f *Factory) initializeComponents() error {
	cfg := f.config
	logger := util.Get()

	catalog, err := matcher.LoadCatalog(cfg.Catalog.File)
	if err != nil {
		return err
	}
	f.catalog = catalog

	company := cfg.App.CompanyName
	if company == "" {
		company = catalog.Company.Name
	}

	if f.sender, err = f.buildSender(); err != nil {
		return err
	}
	if cfg.OpenAI.APIKey != "" {
		p := llm.NewOpenAIProvider(llm.NewOpenAIClient(cfg.OpenAI.APIKey), llm.Options{
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
		}, logger)
		f.provider = p
		if cfg.OpenAI.ModerationEnabled {
			f.moderator = p
		}
	} else {
		util.Warn("OPENAI_API_KEY not set - unmatched questions get the contact fallback")
	}

	f.validator = emailcheck.NewValidator(logger)

	otpOpts := []otp.Option{
		otp.WithTTL(cfg.OTP.TTL),
		otp.WithMaxAttempts(cfg.OTP.MaxAttempts),
		otp.WithBranding(company, cfg.App.WebsiteURL, cfg.App.VerificationBaseURL),
	}
	if f.redisClient != nil {
		otpOpts = append(otpOpts, otp.WithLimiter(redisrepo.NewOTPSendLimiter(f.redisClient, cfg.OTP.SendLimit, cfg.OTP.SendWindow)))
		f.sessionStore = redisrepo.NewSessionStore(f.redisClient, cfg.Session.TTL)
	} else {
		otpOpts = append(otpOpts, otp.WithLimiter(memory.NewOTPSendLimiter(cfg.OTP.SendLimit, cfg.OTP.SendWindow)))
		f.sessionStore = memory.NewSessionStore(cfg.Session.TTL)
	}

	var classifier llm.Provider
	if cfg.OpenAI.AIGibberishCheck {
		classifier = f.provider
	}

	contact := responder.Contact{
		Company:    company,
		Email:      cfg.App.ContactEmail,
		FormURL:    cfg.App.ContactFormURL,
		WebsiteURL: cfg.App.WebsiteURL,
	}

	f.controller = conversation.NewController(conversation.Deps{
		Validator: f.validator,
		Codes:     otp.NewManager(f.sender, logger, otpOpts...),
		Filter:    moderation.NewFilter(f.moderator, classifier, cfg.OpenAI.FilterModel, logger),
		Matcher:   matcher.New(catalog),
		Responder: responder.New(catalog, f.provider, logger,
			responder.WithThreshold(cfg.Catalog.MatchThreshold),
			responder.WithContact(contact),
		),
		Catalog:   catalog,
		Archiver:  f.buildArchiver(company),
		Publisher: f.buildPublisher(),
		Recorder:  f.buildRecorder(),
	}, conversation.Settings{
		Company:      company,
		ContactEmail: cfg.App.ContactEmail,
		IdleFollowUp: cfg.Session.IdleFollowUp,
		IdleEnd:      cfg.Session.IdleEnd,
		ResetDelay:   cfg.Session.ResetDelay,
	}, logger)

	util.Info("Components initialized successfully",
		util.Int("catalog_categories", len(catalog.Categories)),
		util.Float64("match_threshold", cfg.Catalog.MatchThreshold),
		util.Bool("moderation_enabled", f.moderator != nil),
		util.Bool("ai_gibberish_check", classifier != nil),
	)
	return nil
}

func (f *Factory) buildSender() (mailer.Sender, error) {
	cfg := f.config
	logger := util.Get()
	switch cfg.Mail.Provider {
	case "smtp":
		if cfg.Mail.SMTPHost == "" {
			return nil, errors.New("MAIL_PROVIDER=smtp requires SMTP_HOST")
		}
		return mailer.NewSMTPSender(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.SMTPUsername, cfg.Mail.SMTPPassword, cfg.Mail.SMTPFrom, logger), nil
	case "ses":
		if f.awsClients == nil {
			return nil, errors.New("MAIL_PROVIDER=ses requires AWS configuration")
		}
		return mailer.NewSESSender(f.awsClients.SES, cfg.AWS.SESFromEmail, logger), nil
	default:
		return nil, fmt.Errorf("unknown MAIL_PROVIDER %q", cfg.Mail.Provider)
	}
}

func (f *Factory) buildArchiver(company string) conversation.Archiver {
	cfg := f.config
	var opts []transcript.Option

	if cfg.AWS.S3BucketName != "" && f.awsClients != nil {
		opts = append(opts, transcript.WithStore(storage.NewS3Store(f.awsClients.S3, cfg.AWS.S3BucketName, cfg.AWS.Region, util.Get())))
	}
	if cfg.AWS.NotificationEmail != "" {
		opts = append(opts, transcript.WithNotification(f.sender, cfg.AWS.NotificationEmail))
	}
	if f.esClient != nil {
		opts = append(opts, transcript.WithIndexer(search.NewTranscriptIndexer(f.esClient, cfg.Elasticsearch.Index)))
	}

	if len(opts) == 0 {
		util.Warn("No transcript sinks configured - conversations will not be archived")
	}
	return transcript.NewArchiver(company, util.Get(), opts...)
}

func (f *Factory) buildPublisher() conversation.Publisher {
	if f.kafkaProducer != nil {
		return events.NewKafkaPublisher(f.kafkaProducer, f.config.Kafka.Topic, util.Get())
	}
	return events.NewLogPublisher(util.Get())
}

func (f *Factory) buildRecorder() conversation.Recorder {
	if f.clickhouseClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec := analytics.NewClickHouseRecorder(f.clickhouseClient, 100, util.Get())
	if err := rec.Migrate(ctx); err != nil {
		util.Warn("ClickHouse migration failed - reply analytics disabled", util.ErrorField(err))
		return nil
	}

	runCtx, stop := context.WithCancel(context.Background())
	f.stopAnalytics = stop
	f.analyticsDone = make(chan struct{})
	go func() {
		defer close(f.analyticsDone)
		rec.Run(runCtx, analyticsFlushInterval)
	}()

	f.recorder = rec
	return rec
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.controller,
			f.sessionStore,
			f.validator,
			f.config.Session.SweepInterval,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck probes every client that was enabled. Kafka is advisory and
// reported only when its producer exists.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.config.Session.Store == "redis" {
		if f.redisClient == nil {
			healthErrors["redis"] = fmt.Errorf("redis client not initialized")
		} else if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.config.Elasticsearch.Enabled {
		if f.esClient == nil {
			healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
		} else if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.config.Clickhouse.Enabled {
		if f.clickhouseClient == nil {
			healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
		} else if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.controller == nil {
		healthErrors["conversation"] = fmt.Errorf("conversation controller not initialized")
	}

	return healthErrors
}

// ==============================
// Other Utility Methods
// ==============================

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		// Stop the sweeper first so no conversation ends after its sinks close
		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
			util.Info("Service factory cleaned up")
		}

		if f.stopAnalytics != nil {
			f.stopAnalytics()
			<-f.analyticsDone
			util.Info("Reply analytics flushed")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

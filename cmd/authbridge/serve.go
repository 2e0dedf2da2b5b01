package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/layer-3/authbridge/adapters/backend"
	"github.com/layer-3/authbridge/adapters/events"
	"github.com/layer-3/authbridge/adapters/session"
	"github.com/layer-3/authbridge/adapters/store"
	"github.com/layer-3/authbridge/internal/config"
	"github.com/layer-3/authbridge/internal/logging"
	"github.com/layer-3/authbridge/internal/metrics"
	"github.com/layer-3/authbridge/ports"
	"github.com/layer-3/authbridge/service"
	transporthttp "github.com/layer-3/authbridge/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authentication bridge HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":3000", "Listen address")
	_ = v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	serveCmd.Flags().String("backend", "", "Backend API base URL")
	_ = v.BindPFlag("backend.url", serveCmd.Flags().Lookup("backend"))

	serveCmd.Flags().String("redis", "", "Redis URL for shared credentials and sessions (empty uses memory)")
	_ = v.BindPFlag("redis.url", serveCmd.Flags().Lookup("redis"))
}

// stores bundles the storage and event adapters chosen by configuration
type stores struct {
	cache      ports.CredentialCache
	revoked    ports.RevocationStore
	publisher  ports.EventPublisher
	subscriber *redisstream.Subscriber
	close      func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Redis.URL == "" {
		log.Warn().Msg("no redis configured, using in-memory stores (single instance only)")
		return &stores{
			cache:     store.NewMemoryCredentialCache(),
			revoked:   store.NewMemoryRevocationStore(),
			publisher: events.NopPublisher{},
			close:     func() {},
		}, nil
	}

	client, err := store.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}

	wmLogger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	// No consumer group: every instance receives every logout
	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{Client: client}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to create redis subscriber: %w", err)
	}

	return &stores{
		cache:      store.NewRedisCredentialCache(client),
		revoked:    store.NewRedisRevocationStore(client),
		publisher:  events.NewWatermillPublisher(publisher),
		subscriber: subscriber,
		close: func() {
			_ = subscriber.Close()
			_ = publisher.Close()
			_ = client.Close()
		},
	}, nil
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.Component("server")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	httpClient := &http.Client{
		Timeout:   cfg.Backend.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	sessions := session.NewJWTProvider([]byte(cfg.Session.Secret), st.revoked,
		session.WithSessionTTL(cfg.Session.TTL),
		session.WithCutoffCache(session.DefaultCacheSize, cfg.Session.CacheTTL),
	)

	backendClient := backend.NewClient(cfg.Backend.URL, httpClient)
	var refresh ports.RefreshClient = backendClient
	if cfg.Backend.RefreshMode == config.RefreshModeOAuth2 {
		refresh = backend.NewOAuth2Refresher(cfg.Backend.TokenURL, cfg.Backend.ClientID, cfg.Backend.ClientSecret, httpClient)
	}

	bridge, err := service.NewBridge(service.Deps{
		Cache:         st.cache,
		Sessions:      sessions,
		Refresh:       refresh,
		Authenticator: backendClient,
		Events:        st.publisher,
		HTTPClient:    httpClient,
		Metrics:       m,
		Logger:        logging.Component("bridge"),
	}, service.Options{
		BackendURL:    cfg.Backend.URL,
		LookupTimeout: cfg.Credentials.LookupTimeout,
		RecordTTL:     cfg.Credentials.DefaultTTL,
		SingleFlight:  cfg.Refresh.SingleFlight,
		SignInPath:    cfg.Gate.SignInPath,
		AcquirePath:   cfg.Gate.AcquirePath,
		CallbackParam: cfg.Gate.CallbackParam,
	})
	if err != nil {
		return err
	}

	if st.subscriber != nil {
		listener := events.NewLogoutListener(st.subscriber, sessions, logging.Component("events"))
		go func() {
			if err := listener.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("logout listener stopped")
			}
		}()
	}

	router := transporthttp.SetupRouter(bridge, transporthttp.Config{
		CookieName:   cfg.Session.CookieName,
		CookieSecure: cfg.Session.CookieSecure,
		SessionTTL:   cfg.Session.TTL,
	}, m, reg, logging.Component("http"))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      otelhttp.NewHandler(router, "authbridge"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Str("backend", cfg.Backend.URL).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cdr.dev/slog/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"ecoleafdrive/internal/accounting"
	"ecoleafdrive/internal/auth"
	"ecoleafdrive/internal/config"
	"ecoleafdrive/internal/handler"
	"ecoleafdrive/internal/repository"
	"ecoleafdrive/internal/service"
	"ecoleafdrive/internal/service/s3"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the ledger gRPC service and the metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, opts, cfg, logger)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions, cfg *config.Config, logger slog.Logger) error {
	// Подключаемся к базе данных
	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db, logger); err != nil {
		return err
	}

	storage, err := openStorage(ctx, opts.s3ConfigPath, cfg.Database.Driver, logger)
	if err != nil {
		return err
	}

	authConfig, err := auth.NewConfig(opts.authConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load auth config: %w", err)
	}
	if err := auth.Init(authConfig); err != nil {
		return err
	}
	if len(authConfig.ServiceSubjects) == 0 {
		logger.Warn(ctx, "no service subjects configured, ledger gRPC API will reject every call")
	}

	// Кеш отчетов необязателен
	cache, closeCache, err := openReportCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	registry := prometheus.NewRegistry()
	ledger := accounting.NewService(repository.NewLedgerRepository(db), accounting.Options{
		Logger:     logger,
		Cache:      cache,
		Registerer: registry,
	})

	// Инициализация сервисов
	fileService := service.NewFileService(repository.NewFileRepository(db), ledger, storage, nil, logger)
	noteService := service.NewNoteService(repository.NewNoteRepository(db), ledger, nil, logger)
	textService := service.NewTextService(repository.NewTextRepository(db), ledger, nil, logger)
	profileService := service.NewProfileService(repository.NewProfileRepository(db), nil, logger)
	quotaService := service.NewStorageQuotaService(ledger)

	router := handler.NewRouter(handler.Handlers{
		Files:   handler.NewFileHandler(fileService, logger),
		Notes:   handler.NewNoteHandler(noteService, logger),
		Texts:   handler.NewTextHandler(textService, logger),
		Profile: handler.NewProfileHandler(profileService, logger),
		Storage: handler.NewStorageQuotaHandler(quotaService, logger),
	}, handler.RouterOptions{
		Logger:         logger,
		WriteRateLimit: cfg.Server.UploadRateLimit,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.Server.MetricsPort,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryServerInterceptor()))
	handler.RegisterLedgerEventsServer(grpcServer, handler.NewLedgerHandler(ledger, logger))
	handler.RegisterLedgerAdminServer(grpcServer, handler.NewAdminHandler(quotaService, logger))

	grpcListener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info(egCtx, "starting HTTP server", slog.F("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		logger.Info(egCtx, "starting metrics server", slog.F("port", cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		logger.Info(egCtx, "starting gRPC server", slog.F("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	// Очистка старых дневных счетчиков загрузок
	eg.Go(func() error {
		ledger.RunPruner(egCtx, cfg.Accounting.PruneInterval)
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info(context.Background(), "shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "HTTP server forced to shutdown", slog.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "metrics server forced to shutdown", slog.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	logger.Info(context.Background(), "server exited properly")
	return nil
}

// openStorage подключает S3. Для sqlite без настроенного S3 объекты
// хранятся в памяти процесса.
func openStorage(ctx context.Context, path, driver string, logger slog.Logger) (s3.Storage, error) {
	s3Config, err := s3.NewConfig(path)
	if err != nil {
		if driver == config.DriverSQLite {
			logger.Warn(ctx, "object storage is not configured, keeping file contents in memory", slog.Error(err))
			return s3.NewMemoryStorage(), nil
		}
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client, err := s3.NewClient(ctx, s3Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return client, nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"cdr.dev/slog/v3"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"ecoleafdrive/internal/accounting"
	"ecoleafdrive/internal/auth"
	"ecoleafdrive/internal/config"
	"ecoleafdrive/internal/domain"
	"ecoleafdrive/internal/handler"
	"ecoleafdrive/internal/repository"
	"ecoleafdrive/internal/service"
)

const adminCallTimeout = 5 * time.Minute

var errDriftDetected = errors.New("stored aggregates differ from ledger entries, rerun with --fix")

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var (
		ownerID string
		fix     bool
		server  string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute a user's storage aggregates from ledger entries",
		Long: "By default the running server performs the reconcile, so its quota and reports pick up the fix at once.\n" +
			"--offline works on the database directly and must only be used while the server is stopped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var report *domain.ReconcileReport
			if offline {
				report, err = reconcileOffline(cmd.Context(), cfg, logger, ownerID, fix)
			} else {
				if server == "" {
					server = net.JoinHostPort("localhost", cfg.Server.GRPCPort)
				}
				report, err = reconcileRemote(cmd.Context(), opts, server, ownerID, fix)
			}
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", ownerID, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}

			if report.Drift && !report.Fixed {
				return errDriftDetected
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "user id to reconcile")
	cmd.Flags().BoolVar(&fix, "fix", false, "replace stored aggregates with recomputed values")
	cmd.Flags().StringVar(&server, "server", "", "gRPC address of the running server (default localhost:GRPC_PORT)")
	cmd.Flags().BoolVar(&offline, "offline", false, "reconcile against the database directly, the server must be stopped")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// reconcileRemote выполняет сверку в работающем сервере со служебным токеном
func reconcileRemote(ctx context.Context, opts *rootOptions, addr, ownerID string, fix bool) (*domain.ReconcileReport, error) {
	authConfig, err := auth.NewConfig(opts.authConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load auth config: %w", err)
	}
	if err := auth.Init(authConfig); err != nil {
		return nil, err
	}
	token, err := auth.IssueServiceToken(adminCallTimeout)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, adminCallTimeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)

	return handler.NewLedgerAdminClient(conn).Reconcile(ctx, ownerID, fix)
}

// reconcileOffline сверка напрямую в базе. Кеш отчетов сбрасывается, но
// состояние в памяти работающего сервера не меняется.
func reconcileOffline(ctx context.Context, cfg *config.Config, logger slog.Logger, ownerID string, fix bool) (*domain.ReconcileReport, error) {
	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cache, closeCache, err := openReportCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	ledger := accounting.NewService(repository.NewLedgerRepository(db), accounting.Options{
		Logger: logger,
		Cache:  cache,
	})
	return service.NewStorageQuotaService(ledger).Reconcile(ctx, ownerID, fix)
}

// openReportCache подключает Redis, если он настроен. Без Redis кеша нет.
func openReportCache(ctx context.Context, cfg *config.Config, logger slog.Logger) (accounting.ReportCache, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	rdb, err := repository.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "report cache enabled", slog.F("addr", cfg.Redis.Addr))
	return repository.NewRedisReportCache(rdb, cfg.Redis.ReportTTL), func() { _ = rdb.Close() }, nil
}

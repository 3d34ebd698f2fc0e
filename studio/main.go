package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bannerstage-labs/bannerstage-go/internal/capture"
	"github.com/bannerstage-labs/bannerstage-go/internal/control"
	"github.com/bannerstage-labs/bannerstage-go/internal/ingest"
	"github.com/bannerstage-labs/bannerstage-go/internal/orchestrator"
	"github.com/bannerstage-labs/bannerstage-go/internal/platform/auth"
	"github.com/bannerstage-labs/bannerstage-go/internal/platform/httpserver"
	"github.com/bannerstage-labs/bannerstage-go/internal/platform/objectstore"
	"github.com/bannerstage-labs/bannerstage-go/internal/platform/postgres"
	"github.com/bannerstage-labs/bannerstage-go/internal/repo"
	repopg "github.com/bannerstage-labs/bannerstage-go/internal/repo/postgres"
)

const serviceName = "studio"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("studio exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bus := control.NewBus()
	defer bus.Close()
	orch := orchestrator.New(bus)

	ingestSvc := ingest.NewService(cfg.StorageRoot, logger)
	ingestSvc.MaxBundleBytes = int64(cfg.UploadMaxMiB) << 20

	var readiness []httpserver.ReadinessCheck

	var db *sql.DB
	var store repo.WorkspaceStore
	if cfg.DatabaseEnabled {
		pgCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			return err
		}
		db, err = postgres.Open(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		store = repopg.NewWorkspaceStore(db)
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name:  "postgres",
			Check: db.PingContext,
		})

		// Persisted state is a convenience; a broken snapshot starts empty.
		records, err := store.LoadWorkspace(ctx)
		if err != nil {
			logger.Warn("workspace restore failed, starting empty", "error", err)
		} else if len(records) > 0 {
			orch.Restore(fromRecords(records))
			logger.Info("workspace restored", "creatives", len(records))
		}
	}

	var bundles ingest.BundleArchive
	var screenshots capture.ScreenshotArchive
	if cfg.ObjectStoreEnabled {
		osCfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			return err
		}
		client, err := objectstore.NewMinIOClient(osCfg)
		if err != nil {
			return err
		}
		if err := objectstore.EnsureBuckets(ctx, client, osCfg); err != nil {
			return err
		}
		objStore, err := objectstore.NewStore(client)
		if err != nil {
			return err
		}
		bundles = &bundleArchive{store: objStore, bucket: osCfg.BucketBundles}
		screenshots = &screenshotArchive{store: objStore, bucket: osCfg.BucketScreenshots}
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "object_store",
			Check: func(ctx context.Context) error {
				return objectstore.CheckBuckets(ctx, client, osCfg)
			},
		})
		ingestSvc.Archive = bundles
	}

	captureSvc := &capture.Service{
		Bus:     bus,
		Inline:  &capture.StaticRasterizer{Open: sourceOpener(ingestSvc, nil)},
		Archive: screenshots,
		Timeout: cfg.CaptureTimeout,
		Logger:  logger,
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		return err
	}
	var authenticator auth.Authenticator
	switch authCfg.Mode {
	case auth.ModeOIDC:
		authenticator, err = auth.NewOIDCAuthenticator(ctx, authCfg)
		if err != nil {
			return err
		}
	default:
		logger.Warn("dev auth mode active, requests are not verified")
		authenticator = auth.NewDevAuthenticator(authCfg)
	}

	go runReadyTap(ctx, bus, orch, logger)
	go runLoadWatchdog(ctx, orch, cfg.LoadTimeout, logger)

	api := newStudioAPI(logger, ingestSvc, orch, bus, captureSvc, store, db, int64(cfg.UploadMaxMiB)<<20)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("GET /readyz", httpserver.Readyz(serviceName, readiness...))
	api.register(mux)

	authMW := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		SkipPrefixes:  []string{"/healthz", "/readyz", "/agent.js", "/channel"},
	}
	authed := authMW.Wrap(mux)

	// Creative file serving stays public: the rendered creatives themselves
	// fetch assets and carry no operator credentials. Everything else under
	// /creatives/ is an operator route and authenticates.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isCreativeFileRequest(r) {
			mux.ServeHTTP(w, r)
			return
		}
		authed.ServeHTTP(w, r)
	})

	return httpserver.Run(ctx, logger, httpserver.Config{
		Service:         serviceName,
		Addr:            cfg.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, httpserver.Wrap(logger, serviceName, handler))
}

func isCreativeFileRequest(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	rest, ok := strings.CutPrefix(r.URL.Path, "/creatives/")
	if !ok {
		return false
	}
	_, after, found := strings.Cut(rest, "/")
	return found && strings.HasPrefix(after, "files/")
}

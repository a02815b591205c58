package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/cinelog/service-core-go/internal/metrics"
	"github.com/ovaphlow/cinelog/service-core-go/internal/router"
	"github.com/ovaphlow/cinelog/service-core-go/internal/session"
	sessionrepo "github.com/ovaphlow/cinelog/service-core-go/internal/session/repo"
	"github.com/ovaphlow/cinelog/service-core-go/internal/user"
	userrepo "github.com/ovaphlow/cinelog/service-core-go/internal/user/repo"
	"github.com/ovaphlow/cinelog/service-core-go/pkg/database"
	"github.com/ovaphlow/cinelog/service-core-go/pkg/utilities"
)

func main() {
	// best-effort: without a .env the real environment is used
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting cinelog auth service")

	authCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		sugar.Fatalf("auth config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, sessions, closeStores, err := openStores(ctx, sugar)
	if err != nil {
		sugar.Fatalf("open stores: %v", err)
	}
	defer closeStores()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	userSvc, err := user.NewUserService(users, user.BcryptHasher{}, sugar)
	if err != nil {
		sugar.Fatalf("user service: %v", err)
	}
	sessionSvc := session.NewService(authCfg, sessions, userSvc, sugar, metrics.NewAuth(reg))
	go sessionSvc.RunPruner(ctx)

	handler := router.RegisterRoutes(sugar, router.Deps{
		Users:          user.NewHandler(userSvc, sugar),
		Sessions:       session.NewHandler(sessionSvc, authCfg, sugar),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AllowedOrigins: allowedOrigins(),
	})

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

// openStores connects to Postgres when DATABASE_URL is set and falls back
// to in-memory stores otherwise. Memory stores lose everything on exit.
func openStores(ctx context.Context, sugar *zap.SugaredLogger) (user.Repository, session.TxStore, func(), error) {
	if os.Getenv("DATABASE_URL") == "" {
		sugar.Warn("DATABASE_URL not set, using in-memory stores")
		return userrepo.NewMemoryRepo(), session.NewMemoryStore(), func() {}, nil
	}

	sqlDB, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db connect: %w", err)
	}
	db := sqlx.NewDb(sqlDB, "postgres")

	users := userrepo.NewUserRepo(db)
	sessions := sessionrepo.NewSessionRepo(db)
	if err := users.EnsureTable(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, nil, fmt.Errorf("ensure users table: %w", err)
	}
	if err := sessions.EnsureTables(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, nil, fmt.Errorf("ensure session tables: %w", err)
	}
	return users, sessions, func() { sqlDB.Close() }, nil
}

func allowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

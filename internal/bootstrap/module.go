package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"depwatch/internal/bootstrap/config"
	"depwatch/internal/bootstrap/database"
	"depwatch/internal/bootstrap/logging"
	githubinfra "depwatch/internal/infrastructure/github"
	sqliterepo "depwatch/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "depwatch/internal/infrastructure/persistence/sqlite/uow"
	"depwatch/internal/ports"
	"depwatch/internal/usecase/analytics"
	"depwatch/internal/usecase/lifecycle"
	"depwatch/internal/usecase/refresh"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewAlertRepository,
			fx.As(new(ports.AlertRepository)),
			fx.As(new(ports.AlertReadRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(provideFetcher),
	fx.Provide(lifecycle.NewService),
	fx.Provide(analytics.NewService),
	fx.Provide(provideOrchestrator),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideFetcher(ctx context.Context, cfg config.Config) (ports.AlertFetcher, error) {
	return githubinfra.NewFetcher(ctx, cfg.GitHub)
}

func provideOrchestrator(cache *lifecycle.Service, fetcher ports.AlertFetcher, cfg config.Config) *refresh.Orchestrator {
	return refresh.NewOrchestrator(cache, fetcher, cfg.Refresh.Stagger())
}

// Package app is the composition root. Bootstrap stays orchestration-only.
//
// Import Path: oauthbridge.io/bridge/internal/app
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"oauthbridge.io/bridge/internal/api/handlers"
	"oauthbridge.io/bridge/internal/app/modules"
	"oauthbridge.io/bridge/internal/config"
	"oauthbridge.io/bridge/internal/infrastructure"
	"oauthbridge.io/bridge/internal/login"
	"oauthbridge.io/bridge/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module
	Infra   *modules.Infrastructure
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	notificationModule := modules.NewNotificationModule(infra)
	baseModules := []modules.Module{
		modules.NewGovernanceModule(infra),
		notificationModule,
	}

	if notificationModule.Queued() {
		workers := river.NewWorkers()
		for _, mod := range baseModules {
			mod.RegisterWorkers(workers)
		}
		if err := infra.InitRiver(workers); err != nil {
			infra.Close()
			return nil, fmt.Errorf("init river workers: %w", err)
		}
	}

	// A nil dispatcher stays a nil interface so the orchestrator skips it.
	var notifier login.Notifier
	if d := notificationModule.Dispatcher(); d != nil {
		notifier = d
	}
	loginModule, err := modules.NewLoginModule(ctx, infra, notifier)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init login module: %w", err)
	}

	allModules := append(baseModules, loginModule)
	serverDeps := modules.NewServerDeps(cfg, infra, allModules)
	server := handlers.NewServer(serverDeps)

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, serverDeps.Session),
		DB:      infra.DB,
		Pools:   infra.Pools,
		Modules: allModules,
		Infra:   infra,
	}, nil
}

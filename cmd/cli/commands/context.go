package commands

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-planner/internal/config"
	"github.com/jakechorley/volunteer-planner/pkg/db"
)

// Migrator applies schema migrations. Only the postgres store has one.
type Migrator interface {
	RunMigrations(ctx context.Context) error
}

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg      *config.Config
	Database db.Database
	Migrator Migrator
	Logger   *zap.Logger
	Ctx      context.Context
	Now      func() time.Time
}

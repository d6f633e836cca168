package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-planner/cmd/cli/commands"
	"github.com/jakechorley/volunteer-planner/internal/config"
	"github.com/jakechorley/volunteer-planner/pkg/clients/gmailclient"
	"github.com/jakechorley/volunteer-planner/pkg/clients/icsexport"
	"github.com/jakechorley/volunteer-planner/pkg/clients/smtpclient"
	"github.com/jakechorley/volunteer-planner/pkg/core/lifecycle"
	"github.com/jakechorley/volunteer-planner/pkg/core/notify"
	"github.com/jakechorley/volunteer-planner/pkg/db"
	"github.com/jakechorley/volunteer-planner/pkg/postgres"
	"github.com/jakechorley/volunteer-planner/pkg/utils"
	"github.com/jakechorley/volunteer-planner/pkg/utils/logging"
)

var (
	env         string
	verbose     bool
	metricsAddr string
)

// resources holds what initApp starts and shutdown stops
type resources struct {
	closeLog      func() error
	pgDB          *postgres.DB
	queue         *notify.Queue
	unregister    func()
	metricsServer *http.Server
	cancel        context.CancelFunc
}

func main() {
	app := &commands.AppContext{}
	rt := &resources{}

	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "Volunteer Planner CLI - manage shifts and helper notifications",
		Long:  `A CLI tool for publishing shifts, registering volunteers and notifying helpers about changes.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(app, rt)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to the console")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")

	rootCmd.AddCommand(commands.MigrateCmd(app))
	rootCmd.AddCommand(commands.CreateShiftCmd(app))
	rootCmd.AddCommand(commands.CreateShiftSeriesCmd(app))
	rootCmd.AddCommand(commands.UpdateShiftCmd(app))
	rootCmd.AddCommand(commands.DeleteShiftCmd(app))
	rootCmd.AddCommand(commands.ListShiftsCmd(app))
	rootCmd.AddCommand(commands.AddVolunteerCmd(app))
	rootCmd.AddCommand(commands.JoinShiftCmd(app))
	rootCmd.AddCommand(commands.LeaveShiftCmd(app))
	rootCmd.AddCommand(commands.MyShiftsCmd(app))
	rootCmd.AddCommand(commands.BroadcastCmd(app))
	rootCmd.AddCommand(commands.ShowMessageCmd(app))
	rootCmd.AddCommand(commands.EditMessageCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := execute(rootCmd, rt); err != nil {
		os.Exit(1)
	}
}

// execute runs root and releases whatever initApp started, also when the command failed
func execute(root *cobra.Command, rt *resources) error {
	defer shutdown(rt)
	return root.Execute()
}

// initApp sets up logger, config, store, mailer and the notification hooks
func initApp(app *commands.AppContext, rt *resources) error {
	var err error

	app.Ctx, rt.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.Now = time.Now

	app.Logger, rt.closeLog, err = logging.InitLogger(env, logging.Options{Verbose: verbose})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Info("Starting application", zap.String("environment", env))

	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully", zap.String("store", app.Cfg.Store), zap.String("transport", app.Cfg.Mail.Transport))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := notify.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	hooks := lifecycle.NewRegistry()

	switch app.Cfg.Store {
	case config.StoreMemory:
		app.Logger.Warn("Using the in-memory store; data lasts for this process only")
		app.Database = db.NewMemoryDB(hooks)
	default:
		app.Logger.Info("Connecting to database")
		rt.pgDB, err = postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL, hooks)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		app.Database = rt.pgDB
		app.Migrator = rt.pgDB
		app.Logger.Info("Database connected")
	}

	mailer, err := newMailer(app)
	if err != nil {
		return err
	}

	if qcfg := app.Cfg.Notifications.Queue; qcfg.Enabled {
		rt.queue = notify.NewQueue(mailer, notify.QueueConfig{
			Size:        qcfg.Size,
			Workers:     qcfg.Workers,
			SendTimeout: app.Cfg.Notifications.SendTimeout,
		}, app.Logger, metrics)
		rt.queue.Start()
		mailer = rt.queue
		app.Logger.Debug("Mail queue started", zap.Int("size", qcfg.Size), zap.Int("workers", qcfg.Workers))
	}

	dispatcher, err := notify.NewDispatcher(notify.Config{
		FromAddress:       app.Cfg.Mail.FromAddress,
		NoReplyAddress:    app.Cfg.Mail.NoReplyAddress,
		OperationsAddress: app.Cfg.Mail.OperationsAddress,
		Grace:             app.Cfg.Notifications.Grace,
		SendTimeout:       app.Cfg.Notifications.SendTimeout,
		DedupWindow:       app.Cfg.Notifications.DedupWindow,
		Location:          app.Cfg.Location(),
	}, mailer, app.Logger,
		notify.WithCalendarExporter(icsexport.NewExporter(app.Cfg.Notifications.CalendarDir)),
		notify.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification dispatcher: %w", err)
	}
	rt.unregister = hooks.Register(dispatcher)
	app.Logger.Debug("Notification hooks registered", zap.Int("hooks", hooks.Len()))

	if metricsAddr != "" {
		rt.metricsServer = serveMetrics(metricsAddr, registry, app.Logger)
	}

	return nil
}

func newMailer(app *commands.AppContext) (notify.Mailer, error) {
	mailCfg := app.Cfg.Mail

	switch mailCfg.Transport {
	case config.TransportSMTP:
		client, err := smtpclient.NewClient(*mailCfg.SMTP)
		if err != nil {
			return nil, err
		}
		app.Logger.Info("Sending mail over SMTP", zap.String("host", mailCfg.SMTP.Host))
		return client, nil

	case config.TransportLog:
		app.Logger.Info("Mail is logged, not sent")
		return notify.NewLogMailer(app.Logger), nil

	default:
		oauthCfg, err := config.LoadOAuthClientWithEnv(env)
		if err != nil {
			return nil, fmt.Errorf("failed to load OAuth client config: %w", err)
		}
		oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
		if err != nil {
			return nil, err
		}
		tokens, err := utils.NewTokenManager(oauthConfig, env, app.Logger)
		if err != nil {
			return nil, err
		}
		token, err := tokens.Token(app.Ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get oauth token: %w", err)
		}
		client, err := gmailclient.NewClient(app.Ctx, oauthConfig, token, mailCfg.GmailUserID)
		if err != nil {
			return nil, fmt.Errorf("failed to create gmail client: %w", err)
		}
		app.Logger.Info("Sending mail through Gmail", zap.String("user_id", mailCfg.GmailUserID))
		return client, nil
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))
	return server
}

// shutdown stops in reverse start order. The queue drains before the store closes.
func shutdown(rt *resources) {
	if rt.unregister != nil {
		rt.unregister()
	}
	if rt.queue != nil {
		rt.queue.Stop()
	}
	if rt.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rt.metricsServer.Shutdown(ctx)
		cancel()
	}
	if rt.pgDB != nil {
		rt.pgDB.Close()
	}
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.closeLog != nil {
		rt.closeLog()
	}
}

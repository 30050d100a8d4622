package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/neighbourhoods/nh-tray/internal/adapters/http/api"
	"github.com/neighbourhoods/nh-tray/internal/adapters/http/site"
	"github.com/neighbourhoods/nh-tray/internal/adapters/http/swagger"
	app "github.com/neighbourhoods/nh-tray/internal/app"
	"github.com/neighbourhoods/nh-tray/internal/config"
	"github.com/neighbourhoods/nh-tray/internal/tray"
	"github.com/neighbourhoods/nh-tray/internal/tui"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/spf13/pflag"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
	logFilePermission      = 0600
)

// options are the command line flags.
type options struct {
	configPath  string
	addr        string
	logLevel    string
	logFile     string
	tui         bool
	resourceDef string
	resources   []string
	flags       *pflag.FlagSet
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("nh-tray", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML config file (defaults to $NH_CONFIG)")
	fs.StringVar(&o.addr, "addr", "", "HTTP listen address")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&o.logFile, "log-file", "", "log file used while the TUI is running")
	fs.BoolVar(&o.tui, "tui", false, "run the terminal tray next to the HTTP server")
	fs.StringVar(&o.resourceDef, "resource-def", "post", "resource definition shown by the TUI")
	fs.StringSliceVar(&o.resources, "resource", []string{"post-1", "post-2", "post-3"}, "resources shown by the TUI")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	o.flags = fs
	return o, nil
}

// loadConfig layers changed flags over the loaded config.
func loadConfig(ctx context.Context, o options) (*config.Config, error) {
	cfg, err := config.LoadFile(ctx, o.configPath)
	if err != nil {
		return nil, err
	}
	if o.flags.Changed("addr") {
		cfg.Addr = o.addr
	}
	if o.flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newService(cfg *config.Config, l logger.Logger) *app.Service {
	opts := []app.Option{
		app.WithLogger(l),
		app.WithWorkerCount(cfg.DispatchWorkers),
		app.WithAgent(cfg.Agent),
	}
	if cfg.Store == config.StoreSQLite {
		opts = append(opts, app.WithSQLite(cfg.SQLitePath))
	}
	return app.New(opts...)
}

func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	site.Register(ctx, mux)
	return mux
}

// setupLogging sends logs to stdout, or to a file (or nowhere) while the
// TUI owns the terminal.
func setupLogging(o options) (io.Closer, error) {
	if !o.tui {
		return nil, logger.Init()
	}
	if o.logFile == "" {
		return nil, logger.InitTo(io.Discard)
	}
	f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, err
	}
	return f, logger.InitTo(f)
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Stderr.WriteString("invalid flags: " + err.Error() + "\n")
		os.Exit(2)
	}
	if err := run(o); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(o options) error {
	closer, err := setupLogging(o)
	if err != nil {
		return errors.New("failed to initialize logging: " + err.Error())
	}
	if closer != nil {
		defer closer.Close()
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, o)
	if err != nil {
		return errors.New("failed to load config: " + err.Error())
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := newService(cfg, log)
	if err := svc.Start(ctx); err != nil {
		return errors.New("failed to start service: " + err.Error())
	}
	defer svc.Stop()
	if err := svc.Seed(ctx, cfg.Tray); err != nil {
		return errors.New("failed to seed tray config: " + err.Error())
	}

	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	if o.tui {
		if err := runTUI(ctx, svc, o); err != nil {
			log.Error(ctx, "terminal tray failed", logger.Error(err))
		}
		stop()
	}

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// openRows opens one live surface per resource name.
func openRows(ctx context.Context, svc *app.Service, o options, n *tui.Notifier) ([]tui.Row, error) {
	resourceDef, err := svc.ResourceDef(o.resourceDef)
	if err != nil {
		return nil, err
	}
	rows := make([]tui.Row, 0, len(o.resources))
	for _, name := range o.resources {
		name = strings.TrimSpace(name)
		s, err := svc.OpenSurface(ctx, app.ResourceHash(name), resourceDef, tray.WithOnRebind(n.Notify))
		if err != nil {
			closeRows(rows)
			return nil, err
		}
		rows = append(rows, tui.Row{Name: name, Surface: s})
	}
	return rows, nil
}

func closeRows(rows []tui.Row) {
	for _, r := range rows {
		r.Surface.Close()
	}
}

func runTUI(ctx context.Context, svc *app.Service, o options) error {
	n := tui.NewNotifier()
	rows, err := openRows(ctx, svc, o, n)
	if err != nil {
		return err
	}
	defer closeRows(rows)

	p := tea.NewProgram(tui.New(ctx, o.resourceDef, rows, n), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// startServiceMetricsUpdater refreshes gauges derived from service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats updates the loop queue gauge as a side effect.
			_ = svc.GetStats()
		}
	}
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/linkea-sync/internal/cache"
	"github.com/desertthunder/linkea-sync/internal/repositories"
	"github.com/desertthunder/linkea-sync/internal/services"
	"github.com/desertthunder/linkea-sync/internal/shared"
	"github.com/desertthunder/linkea-sync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database and the Sender.net stack are built on first use so that commands which need neither
// (and tests that inject their own) never touch them.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	input      io.Reader

	db     *sql.DB
	users  *repositories.UserRepository
	store  cache.Store
	client services.Service

	throttle   *services.Throttle
	gate       *tasks.Gate
	groups     *tasks.GroupDirectory
	reconciler *tasks.Reconciler
	engine     *tasks.SyncEngine

	closers []func() error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	// Input answers confirmation prompts. Defaults to os.Stdin.
	Input io.Reader
	DB    *sql.DB
	Store cache.Store
	// Client replaces the Sender.net client built from the config.
	Client services.Service
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		db:         opts.DB,
		store:      opts.Store,
		client:     opts.Client,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, usersCommand, senderCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the config file named by --config when it exists, then applies .env and environment overrides.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	if err := shared.ApplyEnv(r.config, cmd.String("env-file")); err != nil {
		return ctx, err
	}
	if err := r.config.Validate(); err != nil {
		return ctx, err
	}

	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	} else if lvl := cmd.String("log-level"); lvl != "" {
		level, err := shared.ParseLogLevel(lvl)
		if err != nil {
			return ctx, err
		}
		shared.SetLogLevel(r.logger, level)
	}

	return ctx, nil
}

// Close releases the database and cache connections opened by the runner.
func (r *Runner) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

// userRepo opens the configured database on first use.
func (r *Runner) userRepo(ctx context.Context) (*repositories.UserRepository, error) {
	if r.users != nil {
		return r.users, nil
	}

	if r.db == nil {
		db, err := shared.OpenDatabase(ctx, r.config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		r.db = db
		r.closers = append(r.closers, db.Close)
	}

	r.users = repositories.NewUserRepository(r.db)
	return r.users, nil
}

// cacheStore selects the group cache backend from sender.cache_driver.
func (r *Runner) cacheStore(ctx context.Context) (cache.Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	switch r.config.Sender.CacheDriver {
	case "memory":
		r.store = cache.NewMemoryStore()
	case "redis":
		store, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     r.config.Redis.Addr,
			Password: r.config.Redis.Password,
			DB:       r.config.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, store.Close)
		r.store = store
	default:
		if _, err := r.userRepo(ctx); err != nil {
			return nil, err
		}
		r.store = repositories.NewCacheRepository(r.db)
	}

	r.logger.Debug("group cache ready", "driver", r.config.Sender.CacheDriver)
	return r.store, nil
}

// senderStack builds the gate, client, group directory, reconciler and sync engine.
//
// With force the environment check of the gate is bypassed. A gate that is still closed is an error wrapping
// [shared.ErrSyncDisabled].
func (r *Runner) senderStack(ctx context.Context, force bool) error {
	if r.gate == nil {
		r.gate = tasks.NewGate(r.config.Sender, r.config.App.Env)
	}
	if force && !r.gate.Forced() {
		r.gate.ForceEnable()
		r.logger.Warn("force mode enabled: ignoring environment restrictions")
	}
	if !r.gate.Enabled() {
		return fmt.Errorf("%w: %s", shared.ErrSyncDisabled, r.gate.Reason())
	}
	if r.engine != nil {
		return nil
	}

	cfg := r.config.Sender
	r.throttle = services.NewThrottle(services.ThrottleOpts{
		Floor:  cfg.Delay(),
		Rate:   cfg.RateLimit,
		Logger: shared.WithLogger(r.logger, "component", "throttle"),
	})

	if r.client == nil {
		client, err := services.NewSenderClient(ctx, services.SenderOpts{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.TimeoutDuration(),
			MaxRetries: cfg.MaxRetries,
			Throttle:   r.throttle,
			Logger:     shared.WithLogger(r.logger, "component", "sender"),
		})
		if err != nil {
			return err
		}
		r.client = client
	}

	store, err := r.cacheStore(ctx)
	if err != nil {
		return err
	}
	users, err := r.userRepo(ctx)
	if err != nil {
		return err
	}

	r.groups = tasks.NewGroupDirectory(r.client, store, r.gate, cfg.CacheTTLDuration(), r.logger)
	r.reconciler = tasks.NewReconciler(r.client, r.groups, r.gate, users, r.logger)
	r.engine = tasks.NewSyncEngine(r.reconciler, r.throttle, r.logger).WithPaging(cfg.PerPage, cfg.MaxPages)
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", styles.title.Render(title))
	r.writePlain("═══════════════════════════════════════\n")
}

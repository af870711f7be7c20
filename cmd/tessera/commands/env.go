package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dyluth/tessera/internal/config"
	"github.com/dyluth/tessera/internal/engine"
	"github.com/dyluth/tessera/internal/fasttier"
	"github.com/dyluth/tessera/internal/identity"
	"github.com/dyluth/tessera/internal/printer"
	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
	"github.com/redis/go-redis/v9"
)

// Tier flag values.
const (
	tierDurable = "durable"
	tierFast    = "fast"
)

// env is everything a command needs: configuration, both record stores,
// and an engine per tier.
type env struct {
	cfg    *config.TesseraConfig
	logger *slog.Logger

	ledger *ledger.Client

	// fastClient is nil when the fast tier runs on an in-process store.
	fastClient *ledger.Client
	fastStore  fasttier.Store
	fast       *fasttier.Tier

	durable *engine.Engine
}

// newLogger builds the slog handler the configuration asks for.
func newLogger(cfg *config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// openEnv loads configuration and connects to both tiers.
func openEnv(ctx context.Context, opts *globalOptions) (*env, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Fix %s or remove it to use the defaults", opts.configPath)},
		)
	}

	e := &env{cfg: cfg, logger: newLogger(cfg.Logging, os.Stderr)}

	e.ledger, err = connect(ctx, cfg.Ledger.RedisURL, cfg.Ledger.Instance)
	if err != nil {
		return nil, err
	}

	switch cfg.FastTier.Store {
	case config.StoreMemory:
		e.logger.Debug("fast tier uses an in-process store; delegations do not outlive this process")
		e.fastStore = ledger.NewMemory()
	default:
		e.fastClient, err = connect(ctx, cfg.FastTier.RedisURL, cfg.FastTier.Instance)
		if err != nil {
			e.ledger.Close()
			return nil, err
		}
		e.fastStore = e.fastClient
	}

	e.fast, err = fasttier.New(e.fastStore, fasttier.Options{
		Geometry: cfg.Geometry(),
		Cooldown: cfg.CooldownPolicy(),
		Logger:   e.logger,
	})
	if err != nil {
		e.Close()
		return nil, err
	}

	e.durable, err = engine.New(e.ledger, engine.Options{
		Geometry: cfg.Geometry(),
		Cooldown: cfg.CooldownPolicy(),
		FastTier: e.fast,
		Logger:   e.logger,
	})
	if err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

// connect opens and pings one instance-scoped ledger client.
func connect(ctx context.Context, redisURL, instance string) (*ledger.Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client, err := ledger.NewClient(redisOpts, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			map[string]string{"Instance": instance, "Error": err.Error()},
			[]string{
				fmt.Sprintf("Start Redis, or point %s at a running server", config.EnvRedisURL),
			},
		)
	}
	return client, nil
}

// Close releases both Redis connections.
func (e *env) Close() {
	if e.fastClient != nil {
		e.fastClient.Close()
	}
	if e.ledger != nil {
		e.ledger.Close()
	}
}

// engineFor returns the engine serving the named tier.
func (e *env) engineFor(tier string) (*engine.Engine, error) {
	switch tier {
	case tierDurable, "":
		return e.durable, nil
	case tierFast:
		return e.fast.Engine(), nil
	default:
		return nil, printer.Error(
			"invalid tier",
			fmt.Sprintf("Unknown tier: %s", tier),
			[]string{"Valid tiers: durable, fast"},
		)
	}
}

// loadSigner reads the session authority key a write is signed with.
func loadSigner(path string) (canvas.Identity, error) {
	if path == "" {
		return "", printer.Error(
			"missing signing key",
			"This command must be signed by a session authority.",
			[]string{"Pass the authority key file: --key authority.json"},
		)
	}
	kp, err := identity.LoadKeyPair(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", printer.Error(
				"key file not found",
				fmt.Sprintf("No key file at %s", path),
				[]string{"Generate one first:\n  tessera keygen --out " + path},
			)
		}
		return "", err
	}
	return kp.Identity(), nil
}

package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/coder/quartz"
	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/events"
	"github.com/lox/blackjack/internal/player"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/server"
	"github.com/lox/blackjack/internal/service"
	"github.com/lox/blackjack/internal/storage"
	"golang.org/x/sync/errgroup"
)

// ServerCmd runs the HTTP and websocket API
type ServerCmd struct {
	Config    string `kong:"name='server-config',default='blackjack.hcl',help='Path to HCL server configuration'"`
	Addr      string `kong:"help='Listen address host:port (overrides config)'"`
	Debug     bool   `kong:"help='Enable debug logging'"`
	LogFormat string `kong:"default='text',enum='text,json',help='Log output format'"`
	AccessLog bool   `kong:"help='Log every HTTP request'"`
	Storage   string `kong:"help='Storage driver: memory, sqlite, postgres or files (overrides config)'"`
	DSN       string `kong:"help='Storage DSN (overrides config)'"`
	Redis     string `kong:"help='Redis address for event fan-out (overrides config)'"`
	Seed      *int64 `kong:"help='Deterministic deck seed (optional)'"`
}

func (c *ServerCmd) loadConfig() (*server.Config, error) {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return nil, err
	}

	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return nil, fmt.Errorf("invalid --addr: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid --addr port: %w", err)
		}
		cfg.Server.Address = host
		cfg.Server.Port = p
	}
	if c.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if c.Storage != "" {
		cfg.Storage.Driver = c.Storage
		cfg.Storage.DSN = c.DSN
		cfg.ApplyDefaults()
	} else if c.DSN != "" {
		cfg.Storage.DSN = c.DSN
	}
	if c.Redis != "" {
		cfg.Events.RedisAddr = c.Redis
	}
	if c.Seed != nil {
		cfg.Game.Seed = *c.Seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *ServerCmd) Run() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	logger := shared.SetupLogger(cfg.Server.LogLevel, c.LogFormat == "json")
	ctx := shared.SetupSignalHandlerWithLogger(logger)

	backend, err := storage.Open(ctx, cfg.StorageConfig())
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()
	logger.Info("Opened storage", "driver", cfg.Storage.Driver)

	clock := quartz.NewReal()
	players := player.NewService(backend, logger)
	hub := server.NewHub(logger, clock)

	g, gctx := errgroup.WithContext(ctx)

	// Without redis the service feeds the hub directly. With redis every
	// instance publishes to the channel and forwards it into its own hub.
	var publisher events.Publisher = hub
	if cfg.Events.RedisAddr != "" {
		rdb, err := events.NewRedis(ctx, cfg.Events.RedisAddr, cfg.Events.Channel, logger)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		publisher = rdb
		g.Go(func() error {
			return rdb.Forward(gctx, hub)
		})
	}

	seed := randutil.ResolveSeed(cfg.Game.Seed)
	if cfg.Game.Seed != 0 {
		logger.Info("Using deterministic seed", "seed", seed)
	} else {
		logger.Debug("Using random seed", "seed", seed)
	}

	games := service.New(logger, players, backend,
		service.WithClock(clock),
		service.WithDeckSource(service.NewShuffledDecks(seed)),
		service.WithPublisher(publisher))

	opts := []server.Option{server.WithConfig(cfg), server.WithClock(clock)}
	if c.AccessLog {
		opts = append(opts, server.WithAccessLog(shared.SetupAccessLogger(c.LogFormat == "json")))
	}
	srv := server.New(games, players, hub, logger, opts...)

	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	return g.Wait()
}

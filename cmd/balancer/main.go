package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"balancer/internal/api"
	"balancer/internal/audit"
	"balancer/internal/bot"
	"balancer/internal/bus"
	"balancer/internal/config"
	"balancer/internal/exchange"
	"balancer/internal/websocket"
	"balancer/pkg/retry"
	"balancer/pkg/utils"
)

func main() {
	hashPassword := flag.Bool(toolHashPassword, false, "read a password from stdin and print its bcrypt hash for ADMIN_PASSWORD_HASH")
	seal := flag.Bool(toolSeal, false, "read a secret from stdin and print its ENC: value sealed with ENCRYPTION_KEY")
	flag.Parse()

	if *hashPassword || *seal {
		mode := toolHashPassword
		var key string
		if *seal {
			mode = toolSeal
			var err error
			if key, err = config.LoadEncryptionKey(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}
		if err := runTool(os.Stdout, os.Stdin, mode, key); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		utils.L().Error("balancer exited with error", utils.Err(err))
		utils.L().Sync()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	venues, err := buildVenues(cfg.Venues)
	if err != nil {
		return err
	}
	defer exchange.CloseVenues(venues)

	transport, err := buildTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(transport); err != nil {
			log.Warn("bus close failed", utils.Err(err))
		}
	}()

	if err := bus.Ping(ctx, transport, retry.StartupConfig()); err != nil {
		return fmt.Errorf("bus %s unavailable: %w", transport.Name(), err)
	}

	hub := websocket.NewHub(cfg.Server.AllowedOrigins...)
	go hub.Run()
	defer hub.Stop()

	publisher := audit.NewPublisher(transport, cfg.Audit, cfg.Bus.PublishTimeout)
	engine := bot.NewEngine(cfg.Balancing, venues, publisher, hub)

	var server *http.Server
	if cfg.Server.Enabled {
		server = startServer(cfg, engine, hub)
	}

	log.Info("balancer started",
		utils.String("env", cfg.Audit.Env),
		utils.Any("venues", engine.Venues()),
		utils.String("bus", transport.Name()),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx)
	}()

	<-ctx.Done()
	log.Info("shutting down, waiting for current iteration")

	// контур доигрывает итерацию сам, сервер отвечает на /status до конца
	wg.Wait()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("server forced to shutdown", utils.Err(err))
		}
	}

	log.Info("balancer exited")
	return nil
}

// buildVenues создаёт адаптеры бирж из настроек
func buildVenues(cfgs []exchange.VenueConfig) ([]exchange.Venue, error) {
	venues := make([]exchange.Venue, 0, len(cfgs))
	for _, vc := range cfgs {
		v, err := exchange.NewVenue(vc)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", vc.Name, err)
		}
		venues = append(venues, v)
	}
	if len(venues) == 0 {
		return nil, errors.New("no venues enabled")
	}
	return venues, nil
}

// buildTransport собирает транспорт аудита из BUS_KINDS.
// Несколько транспортов объединяются в Multi. При ошибке уже открытые закрываются.
func buildTransport(ctx context.Context, cfg *config.Config) (_ bus.Transport, err error) {
	var transports []bus.Transport
	defer func() {
		if err != nil {
			for _, t := range transports {
				bus.Close(t)
			}
		}
	}()

	for _, kind := range cfg.Bus.Kinds {
		switch kind {
		case "rabbitmq":
			transports = append(transports, bus.NewRabbitMQ(cfg.Bus.RabbitMQURL))

		case "kafka":
			k, err := bus.NewKafka(cfg.Bus.KafkaBrokers)
			if err != nil {
				return nil, err
			}
			transports = append(transports, k)

		case "postgres":
			db, err := bus.OpenPostgres(ctx, cfg.Database.DSN(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
			if err != nil {
				return nil, fmt.Errorf("postgres %s: %w", cfg.Database.DSNWithoutPassword(), err)
			}
			pg := bus.NewPostgres(db)
			transports = append(transports, pg)
			if err := pg.EnsureSchema(ctx); err != nil {
				return nil, err
			}

		case "log":
			transports = append(transports, bus.NewLog(utils.L().WithComponent("audit")))
		}
	}

	if len(transports) == 1 {
		return transports[0], nil
	}
	return bus.NewMulti(transports...), nil
}

// startServer запускает HTTP API в отдельной горутине
func startServer(cfg *config.Config, engine *bot.Engine, hub *websocket.Hub) *http.Server {
	router := api.SetupRoutes(&api.Dependencies{
		Loop:           engine,
		Balancing:      cfg.Balancing,
		Security:       cfg.Security,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Stream:         hub.ServeWS,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		utils.L().Info("starting server", utils.String("addr", server.Addr))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.L().Error("server failed", utils.Err(err))
		}
	}()

	return server
}

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"timeflow/internal/api"
	"timeflow/internal/config"
	"timeflow/internal/domain"
	"timeflow/internal/engine"
	"timeflow/internal/notify"
	"timeflow/internal/poller"
	"timeflow/internal/store"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config")
		addr    = flag.String("addr", "", "HTTP bind address (overrides config)")
		dbPath  = flag.String("db", "", "SQLite DB path (overrides config)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	tasks := store.NewSQLiteTaskStore(db)
	schedules := store.NewSQLiteScheduleStore(db)
	reminders := store.NewSQLiteReminderStore(db)

	broadcast := notify.NewBroadcaster()
	registry := notify.NewRegistry()
	registry.Register(domain.ChannelBroadcast, broadcast)
	registry.Register(domain.ChannelLog, notify.NewLogDispatcher(log.Logger))
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect redis")
		}
		registry.Register(domain.ChannelRedis, notify.NewRedisDispatcher(client, cfg.RedisTopic, 0))
		log.Info().Str("addr", cfg.RedisAddr).Str("topic", cfg.RedisTopic).Msg("redis notification channel enabled")
	}

	settings := engine.Settings{
		DefaultScheduleDuration: cfg.DefaultScheduleDuration,
		DefaultReminderLead:     cfg.DefaultReminderLead,
		MinReminderLead:         cfg.MinReminderLead,
		ReminderLookAhead:       cfg.ReminderLookAhead,
		Zone:                    cfg.Zone(),
	}
	clock := engine.SystemClock{}
	reminderEngine := engine.NewReminderEngine(reminders, schedules, tasks, registry, settings, clock, log.Logger)
	scheduleEngine := engine.NewScheduleEngine(schedules, tasks, reminderEngine, settings, clock, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	p := poller.New(scheduleEngine, reminderEngine, cfg.SchedulePollInterval, cfg.ReminderPollInterval, log.Logger)
	go p.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.NewServerWithDebug(tasks, scheduleEngine, reminderEngine, broadcast, cfg.Debug),
	}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	p.Stop()
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}

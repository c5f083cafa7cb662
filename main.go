package main

import (
	"github.com/wfunc/boardserver/achievement"
	"github.com/wfunc/boardserver/config"
	"github.com/wfunc/boardserver/events"
	"github.com/wfunc/boardserver/game"
	"github.com/wfunc/boardserver/ledger"
	"github.com/wfunc/boardserver/logger"
	"github.com/wfunc/boardserver/monitor"
	"github.com/wfunc/boardserver/persistence"
	"github.com/wfunc/boardserver/rpc"
	"github.com/wfunc/boardserver/server"
	"github.com/wfunc/boardserver/settlement"
	"github.com/wfunc/boardserver/timer"
	"github.com/wfunc/boardserver/weekly"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	db, err := persistence.NewGormPostgreSQL(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successful.")

	// Settlement event publisher
	var publisher settlement.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Exchange)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to broker: %v", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	// Metrics endpoint
	mon := monitor.NewMonitor("boardserver")
	mon.StartServer(cfg.Server.MetricsAddress)

	// Stores and settlement pipeline
	ledgerStore := ledger.NewStore(db)
	evaluator := achievement.NewEvaluator(db)
	weeklyStore := weekly.NewStore(db, weeklyConfig(cfg.Weekly))
	weeklyStore.OnRetry = mon.IncRolloverRetries
	pipeline := settlement.NewPipeline(db, evaluator, weeklyStore, publisher, cfg.Game)

	// Game manager and idle sweeper
	gameManager := game.NewManager(db, pipeline, game.NewRandomPicker())
	timers := timer.NewManager()
	defer timers.Stop()
	sweeper := game.NewSweeper(gameManager, db, timers, cfg.Game.SweepInterval, cfg.Game.IdleThreshold)
	sweeper.OnSweep = mon.ObserveSweepDuration
	sweeper.Start()
	defer sweeper.Stop()

	// Weekly rollover scheduler
	scheduler, err := weekly.NewScheduler(weeklyStore, cfg.Weekly.RolloverCron, cfg.Weekly.RetryInterval)
	if err != nil {
		logger.Log.Fatalf("Failed to create weekly scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize Game Server
	boardService := rpc.NewBoardService(db, ledgerStore, weeklyStore, evaluator)
	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, cfg.Server.RPCAddress, db, gameManager, ledgerStore, boardService, mon)

	// Start Server
	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}

func weeklyConfig(cfg config.WeeklyConfig) weekly.Config {
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = config.DefaultTiers()
	}
	out := weekly.Config{
		RetryBackoff: cfg.RetryBackoff,
		MaxRetries:   cfg.MaxRetries,
	}
	for _, t := range tiers {
		out.Tiers = append(out.Tiers, weekly.Tier{
			MinRank: t.MinRank,
			MaxRank: t.MaxRank,
			Amount:  t.Amount,
		})
	}
	return out
}

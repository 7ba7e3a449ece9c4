package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/archive"
	appcfg "github.com/kapu/chess-arena/internal/config"
	"github.com/kapu/chess-arena/internal/game"
	"github.com/kapu/chess-arena/internal/history"
	"github.com/kapu/chess-arena/internal/httpapi"
	"github.com/kapu/chess-arena/internal/identity"
	"github.com/kapu/chess-arena/internal/liveness"
	"github.com/kapu/chess-arena/internal/matchmaking"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/party"
	"github.com/kapu/chess-arena/internal/player"
	"github.com/kapu/chess-arena/internal/rules"
	"github.com/kapu/chess-arena/internal/settlement"
	"github.com/kapu/chess-arena/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}

	st, err := store.Open(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis error: %v", err)
	}

	players := player.NewManager(st, identity.NewLock(st), cfg.OfflineThreshold)
	ledger := history.NewLedger(st)
	games := game.NewManager(st, rules.NewEngine(), settlement.New(players, ledger))
	queue := matchmaking.NewQueue(st, games, players, int64(cfg.MaxConcurrentGames))
	parties := party.NewRegistry(st)

	// finished-game archive is optional; without a database the hot path
	// still works on Redis alone
	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive error: %v", err)
		}
		games.AttachArchive(repo)
	}

	ctx, cancel := context.WithCancel(context.Background())
	monitor := liveness.NewMonitor(games, players, cfg.LivenessInterval)
	go monitor.Run(ctx)

	srv := httpapi.NewServer(players, games, queue, parties, ledger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(cfg.ListenAddr) }()

	obslog.L().Info("arena_started",
		zap.String("addr", cfg.ListenAddr),
		zap.Int("max_concurrent_games", cfg.MaxConcurrentGames),
		zap.Duration("offline_threshold", cfg.OfflineThreshold),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		obslog.L().Info("arena_shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		obslog.L().Error("arena_serve_error", zap.Error(err))
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		_ = srv.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
	}

	if repo != nil {
		_ = repo.Close()
	}
	_ = st.Close()
}

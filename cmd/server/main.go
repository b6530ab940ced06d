package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/hangman-backend/internal/config"
	"github.com/DoyleJ11/hangman-backend/internal/directory"
	"github.com/DoyleJ11/hangman-backend/internal/fabric"
	"github.com/DoyleJ11/hangman-backend/internal/httpapi"
	"github.com/DoyleJ11/hangman-backend/internal/hub"
	"github.com/DoyleJ11/hangman-backend/internal/invite"
	"github.com/DoyleJ11/hangman-backend/internal/lobby"
	"github.com/DoyleJ11/hangman-backend/internal/storage"
	"github.com/DoyleJ11/hangman-backend/internal/ws"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const releaseVersion = "0.1.0"

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		cobra.CheckErr(err)
	}
	cfg := &config.Config{}
	cobra.CheckErr(config.NewCommand(cfg, releaseVersion, run).Execute())
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type stores struct {
	invites invite.Store
	archive storage.History
	close   func() error
}

func openStores(cfg *config.Config, log *zap.Logger) (stores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("using in-memory stores")
		return stores{
			invites: invite.NewMemoryStore(),
			archive: storage.NewMemoryArchive(),
			close:   func() error { return nil },
		}, nil
	}
	db, err := storage.Open(cfg.DatabaseURL, log)
	if err != nil {
		return stores{}, err
	}
	return stores{invites: db.Invites(), archive: db.Sessions(), close: db.Close}, nil
}

func run(cmd *cobra.Command, cfg *config.Config) (err error) {
	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", zap.String("version", releaseVersion), zap.String("addr", cfg.Addr()))

	st, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.close()) }()

	var opts []invite.Option
	if cfg.DirectoryFile != "" {
		dir, err := directory.Load(cfg.DirectoryFile)
		if err != nil {
			return err
		}
		opts = append(opts, invite.WithDirectory(dir))
	}

	// Actors outlive ctx so shutdown can drain them in order.
	root, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	fab := fabric.New(root, log)

	var manager *invite.Manager
	h := hub.NewHub(root, lobby.Config{
		IdleTimeout:    cfg.SessionIdle,
		FinishedLinger: cfg.FinishedLinger,
	}, lobby.Deps{
		Publisher: fab,
		Archive:   st.archive,
		OnWord: func(ctx context.Context, sessionID, word string) {
			manager.RecordWord(ctx, sessionID, word)
		},
		Log: log,
	})

	manager = invite.NewManager(st.invites, h, fab, invite.Config{
		TTL:               cfg.InviteTTL,
		RequireFriends:    cfg.RequireFriends,
		AcceptedRetention: cfg.AcceptedRetention,
	}, log, opts...)
	if err := manager.Resume(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Invites:     manager,
			Sessions:    h,
			History:     st.archive,
			Socket:      ws.Handler(fab, h, log, ws.Options{OriginPatterns: cfg.CORSOrigins}),
			Log:         log,
			CORSOrigins: cfg.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       10 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweep(gctx, manager, cfg.SweepInterval, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		return shutdown(srv, h, manager, fab)
	})

	return g.Wait()
}

func sweep(ctx context.Context, m *invite.Manager, every time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("invite sweep", zap.Error(err))
			}
		}
	}
}

// shutdown stops intake first, then archives live sessions while the fabric
// can still announce sessionClosed.
func shutdown(srv *http.Server, h *hub.Hub, m *invite.Manager, fab *fabric.Fabric) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(ctx)
	m.Close()
	err = multierr.Append(err, h.Close(ctx))
	fab.Close()
	return err
}

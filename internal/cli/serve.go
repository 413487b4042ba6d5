package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/tonal-divider/internal/db"
	"github.com/justestif/tonal-divider/internal/engine"
	"github.com/justestif/tonal-divider/internal/features"
	"github.com/justestif/tonal-divider/internal/metrics"
	"github.com/justestif/tonal-divider/internal/recorder"
	"github.com/justestif/tonal-divider/internal/web"
	webfs "github.com/justestif/tonal-divider/web"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "tonal"

func newServeCommand(a *app) *cobra.Command {
	var (
		framesPath string
		loop       bool
		resume     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the live view, optionally replaying a frames file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var frames []features.Frame
			if framesPath != "" {
				var err error
				if frames, err = readFramesFile(framesPath); err != nil {
					return err
				}
			}
			return a.serve(ctx, frames, loop, resume)
		},
	}

	f := cmd.Flags()
	f.StringVar(&framesPath, "frames", "", "frames file (JSON lines) to replay at engine.frame_rate")
	f.BoolVar(&loop, "loop", false, "replay the frames file forever")
	f.BoolVar(&resume, "resume", false, "continue the latest recorded show instead of starting a new one")
	return cmd
}

func (a *app) serve(ctx context.Context, frames []features.Frame, loop, resume bool) error {
	collector := metrics.New(metricsNamespace)
	opts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithMetrics(collector),
	}

	var rec *recorder.Recorder
	if a.cfg.Database.URL != "" {
		database, err := db.New(ctx, a.cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()

		if err := database.EnsureSchema(ctx); err != nil {
			return err
		}

		show, err := a.openShow(ctx, database, resume)
		if err != nil {
			return err
		}
		a.logger.Info("recording show", zap.String("show_id", show.ID.String()), zap.String("name", show.Name))

		rec = recorder.New(database.Lines(), show.ID, recorder.WithLogger(a.logger))
		opts = append(opts, engine.WithObserver(rec))
	} else if resume {
		return errors.New("--resume needs database.url")
	}

	eng := engine.New(a.cfg.EngineConfig(), opts...)

	if rec != nil && resume {
		lines, err := rec.Latest(ctx)
		if err != nil {
			return err
		}
		eng.Restore(lines)
	}

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}
	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:            a.cfg.Server.Addr,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		TemplatesFS:     templates,
		StaticFS:        static,
		Engine:          eng,
		Metrics:         collector,
		Logger:          a.logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	if len(frames) > 0 {
		g.Go(func() error {
			return playFrames(gctx, eng, frames, a.cfg.FrameInterval(), loop, a.logger)
		})
	}
	if rec != nil {
		g.Go(func() error { return rec.Run(gctx, a.cfg.Database.FlushInterval) })
	}
	return g.Wait()
}

// openShow returns the latest show when resuming, otherwise a new one.
func (a *app) openShow(ctx context.Context, database *db.DB, resume bool) (*db.Show, error) {
	if resume {
		show, err := database.Shows().Latest(ctx)
		if err == nil {
			return show, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		a.logger.Info("no show to resume, starting a new one")
	}

	name := a.cfg.Database.ShowName
	if name == "" {
		name = "Show " + time.Now().Format("2006-01-02 15:04")
	}
	show := &db.Show{Name: name}
	if err := database.Shows().Create(ctx, show); err != nil {
		return nil, err
	}
	return show, nil
}

// stepper is the part of *engine.Engine replay needs.
type stepper interface {
	Step(f features.Frame) (bool, error)
}

// playFrames steps one frame per interval until the frames run out (or
// forever when loop is set) or ctx is cancelled.
func playFrames(ctx context.Context, eng stepper, frames []features.Frame, interval time.Duration, loop bool, logger *zap.Logger) error {
	if len(frames) == 0 {
		return nil
	}
	ticker := time.NewTicker(max(interval, time.Nanosecond))
	defer ticker.Stop()

	for i := 0; ; i++ {
		if i == len(frames) {
			if !loop {
				logger.Info("replay finished", zap.Int("frames", len(frames)))
				return nil
			}
			i = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := eng.Step(frames[i]); err != nil {
			return fmt.Errorf("replaying frame %d: %w", i, err)
		}
	}
}

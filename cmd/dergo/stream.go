package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/dergo/internal/capture"
	"github.com/Faultbox/dergo/internal/logger"
	"github.com/Faultbox/dergo/internal/metrics"
	"github.com/Faultbox/dergo/internal/network/packets"
	"github.com/Faultbox/dergo/internal/scene/gltfsource"
	"github.com/Faultbox/dergo/internal/session"
)

func (a *app) streamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream <scene.gltf>",
		Short: "Sync a scene to the renderer",
		Long: `Sync a scene to the renderer once, or keep syncing it with --watch.

In watch mode the file is reloaded whenever it changes, at most once per
tick, and only the differences are sent. A lost renderer is retried every
tick.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStream(cmd.Context(), args[0])
		},
	}
}

// openSession connects to the renderer with metrics and the optional
// capture file wired in. The returned cleanup closes both.
func (a *app) openSession(ctx context.Context, opts ...session.Option) (*session.Session, func(), error) {
	opts = append([]session.Option{
		session.WithLogger(logger.Named("session")),
		session.WithMetrics(metrics.New()),
	}, opts...)

	var rec *capture.Recorder
	if a.cfg.Sync.Capture != "" {
		var err error
		rec, err = capture.Create(a.cfg.Sync.Capture, packets.Version(a.cfg.Sync.ProtocolVersion))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, session.WithRecorder(rec))
	}

	s, err := session.Open(ctx, a.cfg, opts...)
	if err != nil {
		if rec != nil {
			_ = rec.Close()
		}
		return nil, nil, err
	}
	cleanup := func() {
		_ = s.Close()
		if rec != nil {
			if err := rec.Close(); err != nil {
				logger.Warn("closing capture", zap.Error(err))
			}
		}
	}
	return s, cleanup, nil
}

func (a *app) newSource(path string) *gltfsource.Source {
	return gltfsource.New(path,
		gltfsource.WithLogger(logger.Named("gltf")),
		gltfsource.WithWorld(packets.DefaultWorldParams))
}

func (a *app) runStream(ctx context.Context, path string) error {
	log := logger.Named("stream")
	s, cleanup, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if a.cfg.Metrics.Listen != "" {
		serve(ctx, a.cfg.Metrics.Listen, newRouter(s, prometheus.DefaultGatherer), log)
	}
	if s.Status() != session.StatusConnected && !a.cfg.Sync.Watch {
		return fmt.Errorf("renderer at %s is not reachable", a.cfg.Renderer.Address)
	}

	src := a.newSource(path)
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := s.Sync(ctx, snap); err != nil {
		return err
	}
	log.Info("scene synced", zap.String("path", path), zap.Int("objects", len(snap.Objects)))
	if !a.cfg.Sync.Watch {
		return nil
	}
	return watch(ctx, src, s, a.cfg.Sync.TickInterval, log)
}

// watch re-syncs the source whenever its file changes. Events are coalesced
// per tick so an editor's burst of writes costs one reload.
func watch(ctx context.Context, src *gltfsource.Source, s *session.Session, tick time.Duration, log *zap.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	// Editors often replace the file, so watch its directory.
	target := filepath.Clean(src.Path())
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", target, err)
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	log.Info("watching for changes", zap.String("path", target))
	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == target && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = true
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			if s.Status() == session.StatusDisconnected {
				if err := s.Reconnect(ctx); err != nil {
					log.Debug("renderer still unreachable", zap.Error(err))
					continue
				}
				log.Info("renderer connected")
				pending = true
			}
			if !pending {
				continue
			}
			pending = false

			snap, err := src.Snapshot(ctx)
			if err != nil {
				// Usually a half-written file; the next write retries.
				log.Warn("reloading scene", zap.Error(err))
				continue
			}
			start := time.Now()
			if err := s.Sync(ctx, snap); err != nil {
				return err
			}
			log.Debug("scene synced", zap.Int32("frame", s.Frame()), zap.Duration("took", time.Since(start)))
		}
	}
}

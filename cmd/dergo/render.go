package main

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/dergo/internal/camera"
	"github.com/Faultbox/dergo/internal/logger"
	"github.com/Faultbox/dergo/internal/network/packets"
	"github.com/Faultbox/dergo/internal/session"
)

func (a *app) renderCmd() *cobra.Command {
	var (
		out     string
		fit     bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "render <scene.gltf>",
		Short: "Sync a scene and save the rendered frame",
		Long: `Sync a scene, ask the renderer for one frame from the configured
orbit camera and write the result as a PNG.

Examples:
  dergo render scene.gltf -o frame.png
  dergo render scene.gltf -o frame.png --fit --width 1920 --height 1080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRender(cmd.Context(), args[0], out, fit, timeout)
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "render.png", "Output PNG path")
	cmd.Flags().BoolVar(&fit, "fit", false, "Frame the whole scene")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the frame")
	return cmd
}

func (a *app) runRender(ctx context.Context, path, out string, fit bool, timeout time.Duration) error {
	log := logger.Named("render")
	s, cleanup, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if s.Status() != session.StatusConnected {
		return fmt.Errorf("renderer at %s is not reachable", a.cfg.Renderer.Address)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.TestConnection(ctx); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	snap, err := a.newSource(path).Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := s.Sync(ctx, snap); err != nil {
		return err
	}

	cam := camera.New(a.cfg.Camera)
	if fit {
		if lo, hi, ok := snap.Bounds(); ok {
			cam.FitToBounds(lo, hi)
		}
	}
	res, err := s.RenderAndWait(ctx, cam.RenderRequest(true))
	if err != nil {
		return fmt.Errorf("waiting for frame: %w", err)
	}
	if err := writePNG(out, res); err != nil {
		return err
	}
	log.Info("frame saved", zap.String("path", out), zap.Uint16("width", res.Width), zap.Uint16("height", res.Height))
	return nil
}

func writePNG(path string, res *packets.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, res.Image()); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

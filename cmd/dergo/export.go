package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faultbox/dergo/internal/camera"
	"github.com/Faultbox/dergo/internal/capture"
	"github.com/Faultbox/dergo/internal/logger"
	"github.com/Faultbox/dergo/internal/network/packets"
	"github.com/Faultbox/dergo/internal/session"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		out        string
		withRender bool
	)

	cmd := &cobra.Command{
		Use:   "export <scene.gltf>",
		Short: "Write the messages for a scene to a capture file",
		Long: `Run one sync without a renderer and write every message it would
send to a capture file. The file can be inspected with dump.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.runExport(cmd.Context(), args[0], out, withRender)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d frames written to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "scene.drgc", "Capture file path")
	cmd.Flags().BoolVar(&withRender, "render", false, "Append a render request from the configured camera")
	return cmd
}

func (a *app) runExport(ctx context.Context, path, out string, withRender bool) (int, error) {
	rec, err := capture.Create(out, packets.Version(a.cfg.Sync.ProtocolVersion))
	if err != nil {
		return 0, err
	}
	s, err := session.Open(ctx, a.cfg,
		session.WithTransport(capture.NewSink(rec)),
		session.WithLogger(logger.Named("session")))
	if err != nil {
		rec.Close()
		return 0, err
	}

	snap, err := a.newSource(path).Snapshot(ctx)
	if err != nil {
		s.Close()
		return 0, err
	}
	if err := s.Sync(ctx, snap); err != nil {
		s.Close()
		return 0, err
	}
	if withRender {
		cam := camera.New(a.cfg.Camera)
		if lo, hi, ok := snap.Bounds(); ok {
			cam.FitToBounds(lo, hi)
		}
		if err := s.RequestRender(ctx, cam.RenderRequest(false)); err != nil {
			s.Close()
			return 0, err
		}
	}

	n := rec.Frames()
	return n, s.Close()
}

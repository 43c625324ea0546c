package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Faultbox/dergo/internal/capture"
	"github.com/Faultbox/dergo/internal/logger"
	"github.com/Faultbox/dergo/internal/network"
	"github.com/Faultbox/dergo/internal/network/packets"
)

func (a *app) dumpCmd() *cobra.Command {
	var replayTo bool
	cmd := &cobra.Command{
		Use:   "dump <capture>",
		Short: "Print the messages in a capture file or replay them to the renderer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !replayTo {
				return dump(cmd.Context(), cmd.OutOrStdout(), args[0])
			}
			c := network.New(
				network.WithLogger(logger.Named("network")),
				network.WithDialTimeout(a.cfg.Renderer.ConnectTimeout),
			)
			return replay(cmd.Context(), cmd.OutOrStdout(), args[0], c, a.cfg.Renderer.Address)
		},
	}
	cmd.Flags().BoolVar(&replayTo, "replay", false, "send the captured frames to the renderer instead of printing them")
	return cmd
}

// replay streams a capture to the renderer at addr, frame by frame.
func replay(ctx context.Context, w io.Writer, path string, c *network.Client, addr string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening capture: %w", err)
	}
	defer f.Close()

	if err := c.Connect(ctx, addr); err != nil {
		return err
	}
	defer c.Close()

	n, err := capture.Replay(ctx, f, c.Send)
	if err != nil {
		return fmt.Errorf("replaying %s: %w", path, err)
	}
	sent, _, _, _ := c.Stats()
	fmt.Fprintf(w, "replayed %d frames (%d bytes) to %s\n", n, sent, network.NormalizeAddress(addr))
	return nil
}

func dump(ctx context.Context, w io.Writer, path string) error {
	v, err := capture.ReadFile(ctx, path, func(v packets.Version, e capture.Entry) error {
		msg, err := e.Decode(v)
		if err != nil {
			return fmt.Errorf("frame %d: %w", e.Index, err)
		}
		fmt.Fprintf(w, "%5d %-16s %8d  %s\n", e.Index, e.Type, len(e.Payload), describe(msg))
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "protocol v%d\n", v)
	return nil
}

func describe(m packets.Message) string {
	switch m := m.(type) {
	case *packets.Mesh:
		return fmt.Sprintf("mesh %d %q faces=%d vertices=%d slots=%d", m.ID, m.Name, len(m.Geometry.Faces), len(m.Geometry.Vertices), len(m.Materials))
	case *packets.MeshFlat:
		return fmt.Sprintf("mesh %d %q vertices=%d uvs=%d color=%t", m.ID, m.Name, len(m.Vertices), m.Format.UVSets, m.Format.HasColor)
	case *packets.Item:
		return fmt.Sprintf("item %d mesh=%d %q pos=%v", m.ObjectID, m.MeshID, m.Name, m.Transform.Position)
	case *packets.ItemRemove:
		return fmt.Sprintf("item %d mesh=%d", m.ObjectID, m.MeshID)
	case *packets.Light:
		return fmt.Sprintf("light %d %q %s energy=%g", m.ID, m.Name, m.LightType, m.Energy)
	case *packets.LightRemove:
		return fmt.Sprintf("light %d", m.LightID)
	case *packets.Material:
		return fmt.Sprintf("material %d %q", m.ID, m.Name)
	case *packets.MaterialTexture:
		return fmt.Sprintf("material %d slot=%d texture=%d", m.MaterialID, m.Slot, m.TextureID)
	case *packets.Texture:
		return fmt.Sprintf("texture %d %q", m.ID, m.Path)
	case *packets.Render:
		return fmt.Sprintf("view %x %dx%d", m.ViewID, m.Width, m.Height)
	case *packets.ConnectionTest:
		return fmt.Sprintf("%q", m.Text)
	}
	return ""
}

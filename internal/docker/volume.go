package docker

import (
	"context"

	"go.uber.org/zap"
)

// ResetVolume recreates a named volume whose ownership is wrong, typically
// a volume first created by a container running as root. The project is
// taken down with its volumes, the volume is removed if it survived (an
// external volume, or one from another project file), and the project is
// started again so compose recreates the volume with fresh ownership.
func ResetVolume(ctx context.Context, c *Client, comp *Compose, volume string, logger *zap.Logger) error {
	logger.Info("stopping project and removing volumes", zap.String("dir", comp.Dir))
	if err := comp.Down(ctx, true); err != nil {
		return err
	}

	removed, err := c.RemoveVolume(ctx, volume)
	if err != nil {
		return err
	}
	if removed {
		logger.Info("removed volume", zap.String("volume", volume))
	} else {
		logger.Debug("volume already gone", zap.String("volume", volume))
	}

	logger.Info("starting project", zap.String("dir", comp.Dir))
	return comp.Up(ctx)
}

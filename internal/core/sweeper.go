package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// DefaultDeviceMaxAge is how long a device may go without a heartbeat
// before the sweep removes it.
const DefaultDeviceMaxAge = 2 * time.Minute

// SweepStaleDevices removes devices whose lastUpdate is older than maxAge.
// Devices with an unparseable lastUpdate are left alone. The whole sweep is
// one transaction and returns the removed IDs in list order.
func (s *Service) SweepStaleDevices(ctx context.Context, maxAge time.Duration) ([]string, error) {
	if maxAge <= 0 {
		err := fmt.Errorf("device max age must be positive, got %s", maxAge)
		s.reject(ctx, "sweep_devices", err)
		return nil, err
	}
	var removed []string
	err := s.run(ctx, "sweep_devices", func(tx domain.Transaction) error {
		removed = nil
		cutoff := tx.Now().Add(-maxAge)
		for _, d := range tx.Snapshot().ListDevices() {
			seen, err := domain.ParseTimestamp(d.LastUpdate)
			if err != nil || !seen.Before(cutoff) {
				continue
			}
			if err := tx.DeleteDevice(d.DeviceID); err != nil {
				return err
			}
			removed = append(removed, d.DeviceID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.Info("stale devices removed", zap.Strings("devices", removed), zap.Duration("max_age", maxAge))
	}
	return removed, nil
}

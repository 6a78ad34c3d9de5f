package dig_container

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
)

const cleanupTimeout = 10 * time.Minute

// TokenCleanup periodically deactivates duplicate device tokens left over by older clients.
type TokenCleanup struct {
	*cron.Cron
}

// newTokenCleanup schedules device.Service.CleanupAll on the push cleanup schedule (standard 5-field cron, UTC).
// The scheduler is not started.
func newTokenCleanup(conf *core.Config, svc *device.Service, logger core.Logger) (*TokenCleanup, error) {
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	_, err := c.AddFunc(conf.Push.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		n, err := svc.CleanupAll(ctx)
		if err != nil {
			logger.Error(fmt.Sprintf("device token cleanup: %v", err), err)
			return
		}
		logger.Info(fmt.Sprintf("device token cleanup: %d token(s) deactivated", n))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scheduling device token cleanup %q", conf.Push.CleanupSchedule)
	}
	return &TokenCleanup{Cron: c}, nil
}

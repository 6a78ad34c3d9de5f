package main

import (
	"context"

	"github.com/pkg/errors"
)

// cleanupTokens deactivates duplicate device tokens of one user, or of everyone when all is set.
func (cli *commandLine) cleanupTokens(ctx context.Context, userID string, all bool) (int, error) {
	if all {
		n, err := cli.deviceSvc.CleanupAll(ctx)
		return n, errors.Wrap(err, "cleaning up all device tokens")
	}
	n, err := cli.deviceSvc.CleanupDuplicates(ctx, userID)
	return n, errors.Wrapf(err, "cleaning up device tokens of user %s", userID)
}

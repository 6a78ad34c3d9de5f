package dig_container

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
	logsvc "github.com/trezcool/masomo-chat/services/logger"
	inmemdb "github.com/trezcool/masomo-chat/storage/database/inmem"
)

func Test_newTokenCleanup(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{name: "nightly", schedule: "0 3 * * *"},
		{name: "descriptor", schedule: "@hourly"},
		{name: "seconds field is not accepted", schedule: "0 0 3 * * *", wantErr: true},
		{name: "garbage", schedule: "whenever", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Push.CleanupSchedule = tt.schedule
			logger := logsvc.NewDiscard(conf)
			svc := device.NewService(inmemdb.NewDeviceTokenRepository(inmemdb.Open()), validator.New(), logger)

			job, err := newTokenCleanup(conf, svc, logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, job.Entries(), 1)
		})
	}
}

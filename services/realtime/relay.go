package realtimesvc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-chat/core"
)

type relayEnvelope struct {
	Origin  string   `json:"origin"`
	UserIDs []string `json:"user_ids"`
	Frame   Frame    `json:"frame"`
}

// RedisRelay shares frames between instances over a redis pub/sub channel.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     core.Logger
}

var _ Relay = (*RedisRelay)(nil)

// NewRedisClient accepts either a redis:// URL or a plain host:port address.
func NewRedisClient(conf *core.Config) *redis.Client {
	opt, err := redis.ParseURL(conf.Realtime.RedisAddress)
	if err != nil {
		opt = &redis.Options{Addr: conf.Realtime.RedisAddress}
	}
	if conf.Realtime.RedisPassword != "" {
		opt.Password = conf.Realtime.RedisPassword
	}
	return redis.NewClient(opt)
}

func NewRedisRelay(client *redis.Client, conf *core.Config, logger core.Logger) *RedisRelay {
	return &RedisRelay{
		client:     client,
		channel:    conf.Realtime.RedisChannel,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, userIDs []string, f Frame) error {
	payload, err := json.Marshal(relayEnvelope{Origin: r.instanceID, UserIDs: userIDs, Frame: f})
	if err != nil {
		return errors.Wrap(err, "encoding relay envelope")
	}
	return errors.Wrap(r.client.Publish(ctx, r.channel, payload).Err(), "publishing relay envelope")
}

// Run delivers frames published by other instances until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, deliver func(userID string, f Frame) bool) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribing to relay channel")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload, deliver)
		}
	}
}

func (r *RedisRelay) handle(payload string, deliver func(userID string, f Frame) bool) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn(fmt.Sprintf("decoding relay envelope: %v", err), err)
		return
	}
	if env.Origin == r.instanceID {
		return
	}
	for _, uid := range env.UserIDs {
		deliver(uid, env.Frame)
	}
}

package runtime

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/queue/streams"
)

// InitStreams connects to Redis and returns the client together with a
// progress observer publishing to the configured stream.
func InitStreams(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*redis.Client, *streams.StreamObserver, error) {
	rdb, err := OpenRedis(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	reg, err := streams.NewBaseRegistry()
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	r := cfg.Storage.Redis
	obs := streams.NewStreamObserver(streams.NewPublisher(rdb, reg), r.Stream, r.StreamMaxLen, logger)
	return rdb, obs, nil
}

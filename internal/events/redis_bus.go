package events

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBus fans events out across replicas through pub/sub on
// StatusChannel(session id).
type RedisBus struct {
	rdb *redis.Client
	log *logrus.Logger
}

func NewRedisBus(rdb *redis.Client, log *logrus.Logger) *RedisBus {
	if log == nil {
		log = logrus.New()
	}
	return &RedisBus{rdb: rdb, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, StatusChannel(e.SessionID), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, sessionID string) (<-chan []byte, func(), error) {
	ctx, stop := context.WithCancel(ctx)
	pubsub := b.rdb.Subscribe(ctx, StatusChannel(sessionID))
	// wait for the subscription confirmation so no event is missed after return
	if _, err := pubsub.Receive(ctx); err != nil {
		stop()
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, subscriberBuffer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		for {
			m, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					b.log.WithError(err).WithField("session_id", sessionID).Warn("redis subscription ended")
				}
				return
			}
			select {
			case out <- []byte(m.Payload):
			case <-ctx.Done():
				return
			default:
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = pubsub.Close()
			wg.Wait()
		})
	}
	return out, cancel, nil
}

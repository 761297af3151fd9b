package ordercreated

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/qrpay/internal/apperr"
	"github.com/smallbiznis/qrpay/internal/config"
	obscontext "github.com/smallbiznis/qrpay/internal/observability/context"
	"github.com/smallbiznis/qrpay/internal/observability/logger"
	"go.uber.org/zap"
)

const payloadField = "payload"

// Consumer reads the order-created stream through a consumer group.
// Failed messages stay pending and are re-claimed on the next pass until
// they exceed MaxDeliveries, then they are copied to the dead-letter
// stream and acknowledged.
type Consumer struct {
	client  *redis.Client
	handler *Handler
	cfg     config.OrderListenerConfig
	log     *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewConsumer(client *redis.Client, handler *Handler, cfg config.OrderListenerConfig, log *zap.Logger) *Consumer {
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	return &Consumer{
		client:  client,
		handler: handler,
		cfg:     cfg,
		log:     log.Named("ordercreated.consumer"),
		stopCh:  make(chan struct{}),
	}
}

// EnsureGroup creates the consumer group (and stream) if missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s/%s: %w", c.cfg.Stream, c.cfg.Group, err)
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.wg.Add(1)
	go c.loop()
	c.log.Info("order listener started",
		zap.String("stream", c.cfg.Stream),
		zap.String("group", c.cfg.Group),
		zap.String("consumer", c.cfg.Consumer),
	)
	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	close(c.stopCh)
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) loop() {
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.stopCh
		cancel()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.RetryPending(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("retry pending order messages", zap.Error(err))
		}
		if _, err := c.Poll(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("read order messages", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

// Poll reads and handles one batch of new messages.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    10,
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			c.process(ctx, msg)
			handled++
		}
	}
	return handled, nil
}

// RetryPending re-delivers messages that failed earlier, dead-lettering
// the ones that used up their attempts.
func (c *Consumer) RetryPending(ctx context.Context) (int, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Start:    "-",
		End:      "+",
		Count:    10,
		Consumer: c.cfg.Consumer,
		Idle:     c.cfg.BlockTimeout,
	}).Result()
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, entry := range pending {
		msgs, err := c.client.XRangeN(ctx, c.cfg.Stream, entry.ID, entry.ID, 1).Result()
		if err != nil {
			return handled, err
		}
		if len(msgs) == 0 {
			// trimmed from the stream; nothing left to retry
			if err := c.ack(ctx, entry.ID); err != nil {
				return handled, err
			}
			continue
		}

		if entry.RetryCount >= c.cfg.MaxDeliveries {
			if err := c.deadLetter(ctx, msgs[0], entry.RetryCount); err != nil {
				return handled, err
			}
			continue
		}

		// bump the delivery counter before retrying
		if err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Messages: []string{entry.ID},
		}).Err(); err != nil {
			return handled, err
		}
		c.process(ctx, msgs[0])
		handled++
	}
	return handled, nil
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	ctx = obscontext.WithMessageID(ctx, msg.ID)
	log := logger.WithContext(ctx, c.log)

	payload, ok := msg.Values[payloadField].(string)
	if !ok || strings.TrimSpace(payload) == "" {
		log.Warn("order message without payload")
		if err := c.deadLetter(ctx, msg, 0); err != nil {
			log.Error("dead-letter order message", zap.Error(err))
		}
		return
	}

	err := c.handler.Handle(ctx, []byte(payload))
	if err == nil {
		if err := c.ack(ctx, msg.ID); err != nil {
			log.Error("ack order message", zap.Error(err))
		}
		return
	}
	if apperr.IsKind(err, apperr.KindValidation) {
		// retrying cannot fix a malformed order
		if err := c.deadLetter(ctx, msg, 0); err != nil {
			log.Error("dead-letter order message", zap.Error(err))
		}
		return
	}
	log.Warn("order message left pending for retry", zap.Error(err))
}

func (c *Consumer) ack(ctx context.Context, id string) error {
	return c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err()
}

func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage, deliveries int64) error {
	values := make(map[string]any, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["source_id"] = msg.ID
	values["deliveries"] = deliveries

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.DeadLetter, Values: values}).Err(); err != nil {
		return err
	}
	c.log.Warn("order message dead-lettered",
		zap.String("message_id", msg.ID),
		zap.Int64("deliveries", deliveries),
	)
	return c.ack(ctx, msg.ID)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qrpay/internal/outbox/domain"
	paymentdomain "github.com/smallbiznis/qrpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Publisher struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	now   func() time.Time
}

func NewPublisher(p Params) domain.Publisher {
	return &Publisher{
		db:    p.DB,
		log:   p.Log.Named("outbox.publisher"),
		genID: p.GenID,
		repo:  p.Repo,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) PaymentConfirmed(ctx context.Context, db *gorm.DB, payment paymentdomain.Payment) error {
	confirmedAt, ok := payment.PaidAt()
	if !ok {
		confirmedAt = payment.UpdatedAt()
	}
	return p.store(ctx, db, domain.EventTypePaymentConfirmed, payment.ID(), domain.PaymentConfirmed{
		PaymentID:   payment.ID().String(),
		OrderID:     payment.OrderID().String(),
		Amount:      payment.Amount(),
		ConfirmedAt: confirmedAt.UTC(),
	})
}

func (p *Publisher) PaymentFailed(ctx context.Context, db *gorm.DB, payment paymentdomain.Payment, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = string(payment.Status())
	}
	return p.store(ctx, db, domain.EventTypePaymentFailed, payment.ID(), domain.PaymentFailed{
		PaymentID: payment.ID().String(),
		OrderID:   payment.OrderID().String(),
		Reason:    reason,
		FailedAt:  payment.UpdatedAt().UTC(),
	})
}

func (p *Publisher) store(ctx context.Context, db *gorm.DB, eventType string, aggregateID snowflake.ID, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	event := &domain.Event{
		ID:          p.genID.Generate(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     datatypes.JSON(payload),
		CreatedAt:   p.now(),
	}
	if db == nil {
		db = p.db
	}
	if err := p.repo.Insert(ctx, db, event); err != nil {
		return fmt.Errorf("store %s: %w", eventType, err)
	}

	p.log.Debug("outbox event stored",
		zap.String("event_type", eventType),
		zap.String("payment_id", aggregateID.String()),
	)
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"study_delivery_bot/internal/domain/delivery"
	"study_delivery_bot/internal/domain/store"
	"study_delivery_bot/internal/domain/subscriber"
	idb "study_delivery_bot/internal/infra/database"
)

// SubscriberService serves the commands a subscriber sends to the bot.
type SubscriberService struct {
	store         store.Store
	executor      *DeliveryExecutor
	metricsWindow int
	logger        *logrus.Entry
}

func NewSubscriberService(st store.Store, executor *DeliveryExecutor, metricsWindow int, logger *logrus.Entry) *SubscriberService {
	if metricsWindow <= 0 {
		metricsWindow = delivery.DefaultWindow
	}
	return &SubscriberService{
		store:         st,
		executor:      executor,
		metricsWindow: metricsWindow,
		logger:        logger,
	}
}

// Register subscribes a chat, or reactivates it after /stop. The boolean
// result is true when a new subscriber was created.
func (s *SubscriberService) Register(ctx context.Context, chatID int64, firstName, username string) (*subscriber.Subscriber, bool, error) {
	existing, err := s.store.Subscribers().GetByChatID(ctx, chatID)
	if err == nil {
		if existing.IsBlocked {
			return nil, false, ErrSubscriberInactive
		}
		existing.FirstName = firstName
		existing.Username = username
		existing.IsActive = true
		if err := s.store.Subscribers().Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("failed to reactivate subscriber: %w", err)
		}
		return existing, false, nil
	}
	if !errors.Is(err, idb.ErrSubscriberNotFound) {
		return nil, false, fmt.Errorf("failed to check existing subscriber: %w", err)
	}

	sub := &subscriber.Subscriber{
		ChatID:    chatID,
		FirstName: firstName,
		Username:  username,
		IsActive:  true,
	}
	if err := s.store.Subscribers().Create(ctx, sub); err != nil {
		return nil, false, fmt.Errorf("failed to create subscriber: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"subscriber_id": sub.ID, "chat_id": chatID}).Info("New subscriber registered")
	return sub, true, nil
}

// Unsubscribe stops deliveries to the chat. History and progress are kept.
func (s *SubscriberService) Unsubscribe(ctx context.Context, chatID int64) error {
	sub, err := s.store.Subscribers().GetByChatID(ctx, chatID)
	if err != nil {
		return err
	}
	if !sub.IsActive {
		return nil
	}
	sub.IsActive = false
	if err := s.store.Subscribers().Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to deactivate subscriber: %w", err)
	}
	return nil
}

// Acknowledge records the subscriber's answer for a delivered day.
func (s *SubscriberService) Acknowledge(ctx context.Context, chatID int64, day int, ack delivery.Ack) (*AckResult, error) {
	sub, err := s.store.Subscribers().GetByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.executor.Acknowledge(ctx, sub.ID, day, ack)
}

// Progress computes the caller's current metrics.
func (s *SubscriberService) Progress(ctx context.Context, chatID int64) (*delivery.Metrics, error) {
	sub, err := s.store.Subscribers().GetByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return computeMetrics(ctx, s.store, sub.ID, s.metricsWindow)
}

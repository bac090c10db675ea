// Package consumers holds the worker's event handlers: rating replay and
// order notifications.
package consumers

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
)

type RatingRecomputer interface {
	RecomputeRating(ctx context.Context, productID string) (float64, error)
}

// Deduper remembers processed event ids.
type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Service struct {
	Ratings  RatingRecomputer
	Users    domain.UserStore
	Sender   notify.Sender
	Dedup    Deduper
	OpsEmail string
	Log      *zap.Logger
}

// Handle dipasang sebagai handler consumer. A nil return commits the offset.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		// pesan rusak tidak akan pernah sukses; commit dan lanjut
		s.Log.Error("drop undecodable message", zap.String("topic", m.Topic), zap.Error(err))
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	if s.Dedup != nil {
		first, err := s.Dedup.FirstSeen(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("dedup %s: %w", env.EventID, err)
		}
		if !first {
			return nil
		}
	}

	// 3) dispatch
	if err := s.dispatch(ctx, env); err != nil {
		if s.Dedup != nil {
			if ferr := s.Dedup.Forget(ctx, env.EventID); ferr != nil {
				s.Log.Warn("forget dedup mark", zap.String("event_id", env.EventID), zap.Error(ferr))
			}
		}
		return err
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, env domain.Envelope) error {
	switch env.EventType {
	case domain.EventReviewSubmitted:
		p, err := kafkax.UnwrapPayload[domain.ReviewSubmittedPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		return s.replayRating(ctx, p)
	case domain.EventOrderConfirmed:
		p, err := kafkax.UnwrapPayload[domain.OrderConfirmedPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		return s.notifyConfirmed(ctx, p)
	case domain.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[domain.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		return s.notifyStatusChanged(ctx, p)
	default:
		s.Log.Debug("ignore event", zap.String("event_type", env.EventType))
		return nil
	}
}

func (s *Service) drop(env domain.Envelope, err error) error {
	s.Log.Error("drop event with bad payload",
		zap.String("event_id", env.EventID), zap.String("event_type", env.EventType), zap.Error(err))
	return nil
}

// replayRating re-derives the product rating, healing a write that crashed
// between storing the review and recomputing.
func (s *Service) replayRating(ctx context.Context, p domain.ReviewSubmittedPayload) error {
	mean, err := s.Ratings.RecomputeRating(ctx, p.ProductID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		// product sudah dihapus
		return nil
	}
	if err != nil {
		return err
	}
	s.Log.Info("rating replayed", zap.String("product_id", p.ProductID), zap.Float64("rating", mean))
	return nil
}

func (s *Service) notifyConfirmed(ctx context.Context, p domain.OrderConfirmedPayload) error {
	to, name := p.UserEmail, p.UserName
	if to == "" && s.Users != nil {
		if u, err := s.Users.GetUser(ctx, p.UserID); err == nil {
			to, name = u.Email, u.Name
		}
	}
	if to == "" {
		s.Log.Warn("order confirmed without recipient", zap.String("user_id", p.UserID))
		return nil
	}
	s.send(ctx, to, "Your order has been updated", notify.TemplateOrderConfirmed, map[string]any{
		"Name":   name,
		"Status": string(p.Status),
		"Lines":  len(p.LineIDs),
	})
	return nil
}

func (s *Service) notifyStatusChanged(ctx context.Context, p domain.OrderStatusChangedPayload) error {
	if !p.Matched || s.OpsEmail == "" {
		return nil
	}
	s.send(ctx, s.OpsEmail, "Order status changed", notify.TemplateOrderStatusChanged, map[string]any{
		"OrderID": p.LineID,
		"Status":  string(p.Status),
		"AdminID": p.AdminID,
	})
	return nil
}

// send is fire-and-forget: a failed notification never blocks the commit.
func (s *Service) send(ctx context.Context, to, subject, template string, data map[string]any) {
	if err := s.Sender.Send(ctx, to, subject, template, data); err != nil {
		s.Log.Warn("notification failed", zap.String("to", to), zap.String("template", template), zap.Error(err))
	}
}

// Topics lists what the worker subscribes to.
func Topics() []string {
	return []string{domain.TopicReviewEvents, domain.TopicOrderEvents}
}

package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dsvrelay/dsv-relay/internal/notifications"
	"github.com/dsvrelay/dsv-relay/internal/practicecode"
)

var (
	ErrAllocation = errors.New("practice code allocation failed")
	ErrDelivery   = errors.New("report delivery failed")
)

// CodeAllocator hands out the next practice code.
type CodeAllocator interface {
	Next(ctx context.Context) (practicecode.Code, error)
}

// SettingsFunc returns the delivery settings in effect for the current request.
type SettingsFunc func() Settings

// Receipt is returned for every submission that obtained a code.
type Receipt struct {
	Code      practicecode.Code
	Delivered bool
}

type Service struct {
	allocator CodeAllocator
	mailer    notifications.EmailProvider
	settings  SettingsFunc
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(allocator CodeAllocator, mailer notifications.EmailProvider, settings SettingsFunc, opts ...Option) *Service {
	s := &Service{
		allocator: allocator,
		mailer:    mailer,
		settings:  settings,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit normalizes and validates the submission, allocates a practice code and mails the
// report. A code is only consumed once validation passed; it is not returned when delivery
// fails afterwards.
func (s *Service) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		s.metrics.observeOutcome(OutcomeInvalid)
		return Receipt{}, err
	}

	code, err := s.allocator.Next(ctx)
	if err != nil {
		s.metrics.observeOutcome(OutcomeAllocationFailed)
		s.logger.Error("practice code allocation failed", zap.Error(err))
		return Receipt{}, fmt.Errorf("%w: %w", ErrAllocation, err)
	}
	s.metrics.observeCode()
	receipt := Receipt{Code: code}
	log := s.logger.With(zap.String("practice_code", code.String()))

	msg, err := Compose(sub, code, s.settings(), s.now())
	if err != nil {
		s.metrics.observeOutcome(OutcomeDeliveryFailed)
		log.Error("compose report email", zap.Error(err))
		return receipt, fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	start := time.Now()
	err = s.mailer.Send(ctx, msg)
	s.metrics.observeSend(time.Since(start).Seconds())
	if err != nil {
		s.metrics.observeOutcome(OutcomeDeliveryFailed)
		log.Error("send report email", zap.Error(err))
		return receipt, fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	receipt.Delivered = true
	s.metrics.observeOutcome(OutcomeAccepted)
	log.Info("report accepted",
		zap.String("category", sub.Category),
		zap.Bool("has_position", MapsLink(sub.Lat, sub.Lon) != ""),
		zap.Int("photo_bytes", len(sub.Photo.Data)))
	return receipt, nil
}

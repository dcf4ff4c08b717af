package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/splithaus/splithaus/internal/services"
	"github.com/splithaus/splithaus/pkg/logger"
)

const notificationRetention = 90 * 24 * time.Hour

// Sweeper runs the periodic housekeeping jobs: flipping overdue payments,
// closing expired invitation tokens, and pruning old read notifications.
type Sweeper struct {
	payments      *services.PaymentService
	invites       *services.InviteService
	notifications *services.NotificationService
	cron          *cron.Cron
	log           *zap.Logger
}

// NewSweeper constructs a Sweeper.
func NewSweeper(payments *services.PaymentService, invites *services.InviteService, notifications *services.NotificationService) (*Sweeper, error) {
	if payments == nil || invites == nil || notifications == nil {
		return nil, errors.New("maintenance: all services are required")
	}
	return &Sweeper{
		payments:      payments,
		invites:       invites,
		notifications: notifications,
		log:           logger.WithModule("maintenance"),
	}, nil
}

// Start schedules the sweeps: overdue payments hourly, expired invites and
// notification retention daily.
func (s *Sweeper) Start() error {
	if s.cron != nil {
		return errors.New("maintenance: already started")
	}

	c := cron.New()
	if _, err := c.AddFunc("@hourly", func() { s.sweepOverdue(context.Background()) }); err != nil {
		return err
	}
	if _, err := c.AddFunc("@daily", func() { s.sweepInvites(context.Background()) }); err != nil {
		return err
	}
	if _, err := c.AddFunc("@daily", func() { s.sweepNotifications(context.Background()) }); err != nil {
		return err
	}

	s.cron = c
	c.Start()
	s.log.Info("maintenance sweeps scheduled")
	return nil
}

// Stop halts the scheduler and waits for any running job to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// RunOnce executes every sweep immediately and reports all failures together.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	var errs error
	errs = multierr.Append(errs, s.sweepOverdue(ctx))
	errs = multierr.Append(errs, s.sweepInvites(ctx))
	errs = multierr.Append(errs, s.sweepNotifications(ctx))
	return errs
}

func (s *Sweeper) sweepOverdue(ctx context.Context) error {
	flipped, err := s.payments.MarkOverdue(ctx, time.Now())
	if err != nil {
		s.log.Error("overdue sweep failed", zap.Error(err))
		return err
	}
	if flipped > 0 {
		s.log.Info("marked payments overdue", zap.Int64("count", flipped))
	}
	return nil
}

func (s *Sweeper) sweepInvites(ctx context.Context) error {
	swept, err := s.invites.DeactivateExpired(ctx, time.Now())
	if err != nil {
		s.log.Error("invite sweep failed", zap.Error(err))
		return err
	}
	if swept > 0 {
		s.log.Info("deactivated expired invites", zap.Int64("count", swept))
	}
	return nil
}

func (s *Sweeper) sweepNotifications(ctx context.Context) error {
	pruned, err := s.notifications.DeleteReadBefore(ctx, time.Now().Add(-notificationRetention))
	if err != nil {
		s.log.Error("notification retention sweep failed", zap.Error(err))
		return err
	}
	if pruned > 0 {
		s.log.Info("pruned read notifications", zap.Int64("count", pruned))
	}
	return nil
}

// Package dialer places the outbound call for a submitted enquiry after
// a fixed delay.
package dialer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/domain"
	"github.com/propvoice/enquiry-agent/internal/ports"
)

type Dialer struct {
	calls      ports.CallControl
	repo       ports.EnquiryRepository
	fromNumber string
	delay      time.Duration
	log        *zap.Logger
}

func New(calls ports.CallControl, repo ports.EnquiryRepository, fromNumber string, delay time.Duration, log *zap.Logger) *Dialer {
	return &Dialer{
		calls:      calls,
		repo:       repo,
		fromNumber: fromNumber,
		delay:      delay,
		log:        log,
	}
}

// Schedule dials the enquiry's contact after the configured delay. The
// timer is abandoned when ctx is cancelled before it fires.
func (d *Dialer) Schedule(ctx context.Context, enquiryID, toNumber string) {
	d.log.Info("Call scheduled",
		zap.String("enquiry_id", enquiryID),
		zap.Duration("delay", d.delay))
	go func() {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			d.log.Info("Scheduled call abandoned", zap.String("enquiry_id", enquiryID))
			return
		}
		d.Dial(ctx, enquiryID, toNumber)
	}()
}

// Dial places the call now and records the outcome: status calling with
// the provider call SID on success, failed otherwise.
func (d *Dialer) Dial(ctx context.Context, enquiryID, toNumber string) {
	callSID, err := d.calls.Connect(ctx, d.fromNumber, toNumber, enquiryID)
	if err != nil {
		d.log.Error("Outbound call failed",
			zap.String("enquiry_id", enquiryID), zap.Error(err))
		status := domain.CallStatusFailed
		if err := d.repo.Update(ctx, enquiryID, domain.EnquiryPatch{Status: &status}); err != nil {
			d.log.Error("Failed to mark enquiry failed", zap.Error(err))
		}
		return
	}

	status := domain.CallStatusCalling
	patch := domain.EnquiryPatch{Status: &status, CallSID: &callSID}
	if err := d.repo.Update(ctx, enquiryID, patch); err != nil {
		d.log.Error("Failed to mark enquiry calling", zap.Error(err))
		return
	}
	d.log.Info("Outbound call placed",
		zap.String("enquiry_id", enquiryID), zap.String("call_sid", callSID))
}

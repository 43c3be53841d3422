package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/repo/postgres"
	"github.com/grantdelgado/unveil-sub008/internal/sms"
	"github.com/grantdelgado/unveil-sub008/internal/smsprovider"
	"github.com/grantdelgado/unveil-sub008/pkg/config"
	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

// Dispatcher fans one message out to its resolved recipients. Recipients are
// processed in bounded-size concurrent batches with a brief pause in between
// so the carrier's rate limits are respected; one recipient's failure never
// aborts the others.
type Dispatcher struct {
	deliveries postgres.DeliveryRepository
	guests     postgres.GuestRepository
	sender     smsprovider.Sender
	push       smsprovider.PushSender
	cfg        config.MessagingConfig
}

func NewDispatcher(
	deliveries postgres.DeliveryRepository,
	guests postgres.GuestRepository,
	sender smsprovider.Sender,
	push smsprovider.PushSender,
	cfg config.MessagingConfig,
) *Dispatcher {
	return &Dispatcher{
		deliveries: deliveries,
		guests:     guests,
		sender:     sender,
		push:       push,
		cfg:        cfg,
	}
}

// DeliverRequest carries everything needed to fan out one message.
type DeliverRequest struct {
	Message    *domain.Message
	Event      *domain.Event
	Recipients []domain.Guest
	Skipped    []domain.Guest // resolved-but-excluded guests, counted as skipped
	ViaSMS     bool
	ViaPush    bool
}

// Deliver sends the message to every recipient and records one delivery row
// per attempted recipient. Aggregate counts are exact regardless of batch
// completion order; error reasons are capped, full detail stays in the
// delivery rows.
func (d *Dispatcher) Deliver(ctx context.Context, req DeliverRequest) (*domain.DispatchResult, error) {
	result := &domain.DispatchResult{
		MessageID: req.Message.ID,
		Skipped:   len(req.Skipped),
	}

	var reachable []domain.Guest
	for _, g := range req.Recipients {
		if req.ViaSMS && !g.Reachable() {
			result.Skipped++
			continue
		}
		reachable = append(reachable, g)
	}

	if !req.ViaSMS {
		// Push-only sends have no carrier leg and no delivery rows.
		d.pushAll(ctx, req, reachable)
		result.Sent = len(reachable)
		return result, nil
	}

	var (
		mu       sync.Mutex
		footered []uuid.UUID
	)

	poolSize := d.cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 8
	}

	for start := 0; start < len(reachable); start += poolSize {
		end := start + poolSize
		if end > len(reachable) {
			end = len(reachable)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, guest := range reachable[start:end] {
			guest := guest
			g.Go(func() error {
				sent, withFooter := d.sendOne(gctx, req, guest)
				mu.Lock()
				if sent {
					result.Sent++
					if withFooter {
						footered = append(footered, guest.ID)
					}
				} else {
					result.Failed++
					if len(result.Errors) < d.cfg.ErrorSampleCap {
						result.Errors = append(result.Errors, guest.DisplayName()+": carrier send failed")
					}
				}
				mu.Unlock()
				return nil
			})
		}
		g.Wait()

		if end < len(reachable) && d.cfg.BatchPause > 0 {
			time.Sleep(d.cfg.BatchPause)
		}
	}

	if len(footered) > 0 {
		if err := d.guests.MarkA2PNoticeSent(ctx, footered, time.Now().UTC()); err != nil {
			logger.ErrorContext(ctx, "Failed to mark A2P notices sent", "error", err, "message_id", req.Message.ID)
		}
	}

	if req.ViaPush {
		d.pushAll(ctx, req, reachable)
	}

	return result, nil
}

// ComposeFor renders the SMS text for one recipient. Exposed so the preview
// endpoint and the dispatch path share one renderer.
func (d *Dispatcher) ComposeFor(event *domain.Event, guest *domain.Guest, content string) sms.Composed {
	return sms.Compose(sms.ComposeInput{
		EventTag:      event.SMSTag,
		Body:          content,
		Brand:         d.cfg.Brand,
		IncludeFooter: guest.A2PNoticeSentAt == nil,
	})
}

func (d *Dispatcher) sendOne(ctx context.Context, req DeliverRequest, guest domain.Guest) (sent, withFooter bool) {
	composed := d.ComposeFor(req.Event, &guest, req.Message.Content)

	record := &domain.DeliveryRecord{
		MessageID: req.Message.ID,
		GuestID:   guest.ID,
		Phone:     *guest.Phone,
	}

	res, err := d.sender.Send(ctx, *guest.Phone, composed.Text)
	if err != nil {
		record.Status = domain.DeliveryFailed
		record.ErrorMessage = err.Error()
		logger.WarnContext(ctx, "SMS send failed",
			"message_id", req.Message.ID, "guest_id", guest.ID, "error", err)
	} else {
		record.Status = domain.DeliveryPending
		record.ProviderID = &res.ProviderID
	}

	if _, derr := d.deliveries.Create(ctx, record); derr != nil {
		logger.ErrorContext(ctx, "Failed to record delivery",
			"message_id", req.Message.ID, "guest_id", guest.ID, "error", derr)
	}

	return err == nil, err == nil && guest.A2PNoticeSentAt == nil
}

func (d *Dispatcher) pushAll(ctx context.Context, req DeliverRequest, recipients []domain.Guest) {
	if d.push == nil {
		return
	}
	for _, g := range recipients {
		if g.UserID == nil {
			continue
		}
		if err := d.push.Push(ctx, g.UserID.String(), req.Event.Title, req.Message.Content); err != nil {
			logger.WarnContext(ctx, "Push send failed", "guest_id", g.ID, "error", err)
		}
	}
}

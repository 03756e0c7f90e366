// Package notify sends out-of-band notifications to recipients who have no
// live push channel when a message for them is accepted.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"

	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/relayerr"
	"github.com/xelth-com/dsrelay/internal/store"
)

// Sender delivers a notification over one channel type
type Sender interface {
	Send(ctx context.Context, ch models.NotificationChannel, info models.DeliveryInformation) error
}

// Dispatcher fans an accepted delivery out to the recipient's channels
type Dispatcher struct {
	channels store.NotificationStore
	senders  map[models.NotificationChannelType]Sender
}

// NewDispatcher returns a Dispatcher with no senders
func NewDispatcher(channels store.NotificationStore) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		senders:  make(map[models.NotificationChannelType]Sender),
	}
}

// Use registers the sender for a channel type
func (d *Dispatcher) Use(t models.NotificationChannelType, s Sender) {
	d.senders[t] = s
}

// Register validates and stores a channel for account
func (d *Dispatcher) Register(ctx context.Context, ch models.NotificationChannel) error {
	if _, ok := d.senders[ch.Type]; !ok {
		return fmt.Errorf("%w: unsupported channel type %q", relayerr.ErrInvalidRequest, ch.Type)
	}
	switch ch.Type {
	case models.NotificationEmail:
		addr, err := mail.ParseAddress(ch.Recipient)
		if err != nil {
			return fmt.Errorf("%w: %v", relayerr.ErrInvalidRequest, err)
		}
		ch.Recipient = addr.Address
	}
	return d.channels.AddNotificationChannel(ctx, ch)
}

// Dispatch notifies every channel of info.To. All channels are tried; the
// joined errors are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, info models.DeliveryInformation) error {
	channels, err := d.channels.GetNotificationChannels(ctx, info.To)
	if err != nil {
		return err
	}

	var errs []error
	for _, ch := range channels {
		sender, ok := d.senders[ch.Type]
		if !ok {
			continue
		}
		if err := sender.Send(ctx, ch, info); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", ch.Type, ch.Recipient, err))
			continue
		}
		log.Printf("📨 Notified %s via %s", info.To, ch.Type)
	}
	return errors.Join(errs...)
}

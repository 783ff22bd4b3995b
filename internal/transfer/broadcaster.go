package transfer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Broadcaster drains the tracker's event channel into a Publisher.
type Broadcaster struct {
	events <-chan Event
	pub    Publisher
}

func NewBroadcaster(events <-chan Event, pub Publisher) *Broadcaster {
	return &Broadcaster{events: events, pub: pub}
}

// Run blocks until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-b.events:
			if err := b.pub.Publish(ctx, ev); err != nil {
				logrus.WithFields(logrus.Fields{
					"event":       ev.Type,
					"transfer_id": ev.Transfer.ID,
				}).WithError(err).Warn("publish transfer event failed")
			}
		}
	}
}

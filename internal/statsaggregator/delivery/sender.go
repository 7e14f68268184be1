// Package delivery hands assembled snapshots to external sinks.
package delivery

import (
	"encoding/json"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/statsaggregator/snapshot"
)

// Sender delivers a snapshot to a single destination. Any retrying is the Sender's own business.
type Sender interface {
	Send(ctx *armadacontext.Context, s *snapshot.Snapshot) error
}

// MultiSender sends to every wrapped Sender, even if some of them fail.
type MultiSender struct {
	senders []Sender
}

func NewMultiSender(senders ...Sender) *MultiSender {
	return &MultiSender{senders: senders}
}

func (m *MultiSender) Send(ctx *armadacontext.Context, s *snapshot.Snapshot) error {
	var result *multierror.Error
	for _, sender := range m.senders {
		if err := sender.Send(ctx, s); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// LogSender writes the snapshot payload to the log at debug level.
type LogSender struct{}

func (LogSender) Send(ctx *armadacontext.Context, s *snapshot.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.WithStack(err)
	}
	ctx.Log.WithField("payload", string(payload)).Debug("Stats snapshot")
	return nil
}

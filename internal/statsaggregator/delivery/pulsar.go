package delivery

import (
	"context"
	"encoding/json"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/pkg/errors"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/statsaggregator/snapshot"
)

// Producer is the subset of pulsar.Producer used for publishing snapshots.
type Producer interface {
	Send(ctx context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error)
	Close()
}

// PulsarSender publishes each snapshot as a JSON message keyed by cluster id.
type PulsarSender struct {
	producer Producer
}

func NewPulsarSender(producer Producer) *PulsarSender {
	return &PulsarSender{producer: producer}
}

func (p *PulsarSender) Send(ctx *armadacontext.Context, s *snapshot.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.WithStack(err)
	}
	msg := &pulsar.ProducerMessage{
		Payload:    payload,
		Properties: map[string]string{"contentType": "application/json"},
	}
	if s.SysStats != nil {
		msg.Key = s.SysStats.ClusterId
	}
	id, err := p.producer.Send(ctx, msg)
	if err != nil {
		return errors.Wrap(err, "publishing stats to pulsar")
	}
	ctx.Log.Debugf("Stats published to pulsar as message %v", id)
	return nil
}

func (p *PulsarSender) Close() {
	p.producer.Close()
}

package collector

import (
	"fmt"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/common/logging"
)

// CollectorError is the single failure a collector reports. The message is deliberately generic;
// the underlying error is logged when the collector fails and is available through Unwrap.
type CollectorError struct {
	// Name of the failing collector, e.g. "systems".
	Collector string
	err       error
}

func (e *CollectorError) Error() string {
	return fmt.Sprintf("error collecting %s stats", e.Collector)
}

func (e *CollectorError) Unwrap() error {
	return e.err
}

func (e *CollectorError) Cause() error {
	return e.err
}

func collectionFailed(ctx *armadacontext.Context, collector string, err error) error {
	logging.
		WithStacktrace(ctx.Log.WithField("collector", collector), err).
		Infof("Error in collecting %s stats, skipping current sampling point", collector)
	return &CollectorError{Collector: collector, err: err}
}

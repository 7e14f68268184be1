package delivery

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/statsaggregator/snapshot"
)

const (
	PayloadPath      = "/phdata"
	PayloadFormField = "phdata"
)

type HttpSenderConfig struct {
	// Base URL of the central listener; snapshots are posted to ListenerUrl + /phdata.
	ListenerUrl        string
	InsecureSkipVerify bool
	// Per attempt.
	Timeout     time.Duration
	MaxAttempts uint
	RetryDelay  time.Duration
}

// HttpSender posts the snapshot as the phdata field of a multipart form.
type HttpSender struct {
	url        string
	client     *http.Client
	attempts   uint
	retryDelay time.Duration
}

func NewHttpSender(config HttpSenderConfig) *HttpSender {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	attempts := config.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	return &HttpSender{
		url:        strings.TrimSuffix(config.ListenerUrl, "/") + PayloadPath,
		client:     &http.Client{Transport: transport, Timeout: config.Timeout},
		attempts:   attempts,
		retryDelay: config.RetryDelay,
	}
}

func (h *HttpSender) Send(ctx *armadacontext.Context, s *snapshot.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.WithStack(err)
	}
	body, contentType, err := encodeForm(payload)
	if err != nil {
		return err
	}

	err = retry.Do(
		func() error {
			return h.post(ctx, body, contentType)
		},
		retry.Context(ctx),
		retry.Attempts(h.attempts),
		retry.Delay(h.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			ctx.Log.WithError(err).Warnf("Sending stats to %s failed on attempt %d", h.url, n+1)
		}),
	)
	if err != nil {
		return errors.WithMessagef(err, "sending stats to %s", h.url)
	}
	ctx.Log.Debugf("Stats sent to %s", h.url)
	return nil
}

func (h *HttpSender) post(ctx *armadacontext.Context, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(errors.WithStack(err))
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := h.client.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// StatusError is returned when the listener answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client errors other than 429 are not retried.
func isRetryable(err error) bool {
	if !retry.IsRecoverable(err) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func encodeForm(payload []byte) ([]byte, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.WriteField(PayloadFormField, string(payload)); err != nil {
		return nil, "", errors.WithStack(err)
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.WithStack(err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

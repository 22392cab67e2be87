package diagnosis

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/accura-health/terminology/pkg/common/errs"
)

// Sink is the external clinical record store. It accepts a serialized
// bundle and acknowledges success or not; nothing else about it is assumed.
type Sink interface {
	Submit(ctx context.Context, bundle []byte) error
}

// HTTPSink posts bundles to the configured endpoint. Only 201 Created
// counts as acceptance; a timeout is reported as its own sink failure so
// callers can surface retry-later semantics.
type HTTPSink struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSink(endpoint string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{endpoint: endpoint, client: client}
}

func (s *HTTPSink) Submit(ctx context.Context, bundle []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bundle))
	if err != nil {
		return errs.Sink(errs.SinkRejected, 0, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return errs.Sink(errs.SinkTimeout, 0, err.Error())
		}
		return errs.Sink(errs.SinkRejected, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errs.Sink(errs.SinkRejected, resp.StatusCode, "")
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

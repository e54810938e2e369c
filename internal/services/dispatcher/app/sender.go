package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/louisbranch/neso/internal/services/federation/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const activityContentType = `application/activity+json`

var tracer = otel.Tracer("github.com/louisbranch/neso/internal/services/dispatcher/app")

// HTTPSender posts delivery bodies to remote inbox addresses over HTTP.
type HTTPSender struct {
	// Client is the HTTP client used for posts. When nil the default
	// client applies; per-attempt deadlines come from the loop's context.
	Client *http.Client
	// SignRequest, when set, signs the outgoing request before it is
	// sent, using the delivery's actor id and signing key material.
	SignRequest func(req *http.Request, actorID string, signingKey string) error
}

var _ Sender = (*HTTPSender)(nil)

// Send posts the delivery body to its address. Any transport error or
// non-2xx response marks the attempt failed.
func (s *HTTPSender) Send(ctx context.Context, delivery storage.DeliveryRecord) (err error) {
	ctx, span := tracer.Start(ctx, "dispatcher.send", trace.WithAttributes(
		attribute.String("delivery.address", delivery.Address),
		attribute.Int("delivery.attempt", delivery.Attempt),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.Address, strings.NewReader(delivery.Body))
	if err != nil {
		return fmt.Errorf("build delivery request for %s: %w", delivery.Address, err)
	}
	req.Header.Set("Content-Type", activityContentType)
	if s.SignRequest != nil {
		if err := s.SignRequest(req, delivery.ActorID, delivery.SigningKey); err != nil {
			return fmt.Errorf("sign delivery request for %s: %w", delivery.Address, err)
		}
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post delivery to %s: %w", delivery.Address, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery to %s returned status %d", delivery.Address, resp.StatusCode)
	}
	return nil
}

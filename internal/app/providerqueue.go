package app

import (
	"context"
	"io"

	"github.com/transcribebridge/bridge/internal/provider"
	"github.com/transcribebridge/bridge/internal/queue"
)

// queueProviderAdapter narrows *provider.Client down to queue.ProviderClient,
// translating provider.DispatchResult (which also carries a LanguageCode the
// queue package has no use for) into the queue's own minimal result type so
// the queue package never has to import provider.
type queueProviderAdapter struct {
	client *provider.Client
}

func (a *queueProviderAdapter) Dispatch(ctx context.Context, segmentID string, audio io.Reader, contentType string) (*queue.DispatchResult, error) {
	res, err := a.client.Dispatch(ctx, segmentID, audio, contentType)
	if err != nil {
		return nil, err
	}
	return &queue.DispatchResult{ProviderRequestID: res.ProviderRequestID, Text: res.Text}, nil
}

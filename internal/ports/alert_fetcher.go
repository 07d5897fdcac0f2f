package ports

import (
	"context"
	"encoding/json"
)

// AlertFetcher retrieves the raw vulnerability alerts for one repository
// from the external provider. Payloads are opaque; interpretation belongs to
// the normalizer. An error means the fetch failed and cached state must be
// left untouched.
type AlertFetcher interface {
	FetchRawAlerts(ctx context.Context, repo string) ([]json.RawMessage, error)
}

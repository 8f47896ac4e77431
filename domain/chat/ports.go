package chat

import (
	"context"
	"io"
)

// UpstreamPort abstracts the text-generation provider that produces the event stream.
// OpenStream returns the raw response body on a 2xx status; any other status is
// reported as *UpstreamStatusError.
type UpstreamPort interface {
	OpenStream(ctx context.Context, req *UpstreamRequest) (io.ReadCloser, error)
}

// Package oracle wraps the external image-recognition service the extraction
// pipeline queries. The service is consumed as an opaque capability: one
// bounded call mapping (image bytes, instruction text) to free-form structured
// text. Its output carries no schema guarantee; parsing and validation live
// with the caller.
package oracle

import (
	"context"

	"chartsignal/internal/domain"
)

// Oracle runs one bounded recognition query against a chart image. The caller
// owns the timeout via ctx; implementations must abandon the request when ctx
// is cancelled.
type Oracle interface {
	Analyze(ctx context.Context, img domain.ImageRef, instruction string) (string, error)
}

// Func adapts a plain function to the Oracle interface, used by tests.
type Func func(ctx context.Context, img domain.ImageRef, instruction string) (string, error)

// Analyze implements Oracle.
func (f Func) Analyze(ctx context.Context, img domain.ImageRef, instruction string) (string, error) {
	return f(ctx, img, instruction)
}

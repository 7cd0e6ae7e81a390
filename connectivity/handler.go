// Package connectivity wraps calls to external engines (the OCR process, the
// cgo Tesseract binding) in composable middleware: recovery, timeout, retry,
// circuit breaking, fallback, logging and metrics.
//
// A call is modelled as a Handler taking and returning raw bytes, which for
// OCR is an encoded page image in and UTF-8 text out:
//
//	call := connectivity.Chain(
//	    connectivity.Recovery(logger),
//	    connectivity.WithCircuitBreaker(cb, "tesseract"),
//	    connectivity.WithRetry(1, 200*time.Millisecond, logger),
//	    connectivity.WithTimeout(60*time.Second),
//	)(base)
//	text, err := call(ctx, png)
package connectivity

import "context"

// Handler is a single call to an external engine.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

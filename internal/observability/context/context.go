package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey   ctxKey = "request_id"
	driverKey      ctxKey = "driver_code"
	uploadBatchKey ctxKey = "upload_batch_id"
	jobKey         ctxKey = "job"
	runIDKey       ctxKey = "run_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithDriver tags the context with the external driver code being processed.
func WithDriver(ctx context.Context, driverCode string) context.Context {
	return context.WithValue(ctx, driverKey, strings.TrimSpace(driverCode))
}

func DriverFromContext(ctx context.Context) string {
	return stringValue(ctx, driverKey)
}

// WithUploadBatch tags every log line of one manifest ingestion.
func WithUploadBatch(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, uploadBatchKey, strings.TrimSpace(batchID))
}

func UploadBatchFromContext(ctx context.Context) string {
	return stringValue(ctx, uploadBatchKey)
}

// WithJobRun marks work started by the scheduler rather than a request.
func WithJobRun(ctx context.Context, job, runID string) context.Context {
	ctx = context.WithValue(ctx, jobKey, strings.TrimSpace(job))
	return context.WithValue(ctx, runIDKey, strings.TrimSpace(runID))
}

func JobRunFromContext(ctx context.Context) (string, string) {
	return stringValue(ctx, jobKey), stringValue(ctx, runIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}

package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pkgbigquery "github.com/angelmondragon/snapstudio-backend/pkg/bigquery"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

// BigQueryWriter inserts credit event rows with retries on transient errors.
// Each row carries its event id as the streaming insert id so a redelivered
// message is deduplicated by BigQuery on a best-effort basis.
type BigQueryWriter struct {
	client pkgbigquery.RowInserter
	table  string
	retry  RetryPolicy
}

func New(client pkgbigquery.RowInserter, table string, retry RetryPolicy) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("credit events table is required")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	retry.MaximumBackoff = max(retry.MaximumBackoff, retry.InitialBackoff)
	return &BigQueryWriter{client: client, table: table, retry: retry}, nil
}

// WriteCreditEvent inserts a single row.
func (w *BigQueryWriter) WriteCreditEvent(ctx context.Context, row pkgbigquery.CreditEventRow) error {
	saver := &cbigquery.StructSaver{Struct: row, InsertID: row.EventID}
	return w.insertWithRetry(ctx, []any{saver})
}

func (w *BigQueryWriter) insertWithRetry(ctx context.Context, rows []any) error {
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", w.table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

// isRetryableBigQueryError reports whether every underlying failure is
// transient. Row-level errors arrive as value slices, not pointers.
func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	switch typed := err.(type) {
	case cbigquery.PutMultiError:
		if len(typed) == 0 {
			return false
		}
		for _, rowErr := range typed {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	case cbigquery.MultiError:
		return allRetryable(typed)
	case *cbigquery.RowInsertionError:
		return typed != nil && allRetryable(typed.Errors)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}

func allRetryable(errs cbigquery.MultiError) bool {
	if len(errs) == 0 {
		return false
	}
	for _, inner := range errs {
		if !isRetryableBigQueryError(inner) {
			return false
		}
	}
	return true
}

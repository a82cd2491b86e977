package backup

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"syscall"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
	"github.com/ChaoticEnigma/zfs3backup/pkg/logger"
)

const (
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// RetryController wraps a single chunk upload in a bounded
// exponential-backoff attempt loop. It holds no cross-chunk state;
// every job's retry budget is independent.
type RetryController struct {
	maxRetries int
	delay      time.Duration
	maxDelay   time.Duration
	clock      clock.Clock
	log        logger.Logger
}

func NewRetryController(maxRetries int, clk clock.Clock, log logger.Logger) *RetryController {
	return &RetryController{
		maxRetries: maxRetries,
		delay:      initialRetryDelay,
		maxDelay:   maxRetryDelay,
		clock:      clk,
		log:        log,
	}
}

// Attempt drives job through its state machine until Done or Aborted.
// putFn performs and verifies one upload attempt. On Aborted the
// returned error carries the final classification.
func (r *RetryController) Attempt(ctx context.Context, job *domain.UploadJob, putFn func(context.Context) error) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			job.Attempts++
			job.Status = domain.JobInFlight
			if err := putFn(ctx); err != nil {
				job.LastErr = err
				job.Status = domain.JobPending
				return err
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return !IsRetryable(err)
		},
		NotifyFunc: func(lastError error, attempt int) {
			r.log.Warn("Chunk upload attempt failed",
				"sequence", job.Chunk.Sequence,
				"attempt", attempt,
				"error", lastError)
		},
		Attempts:    r.maxRetries + 1,
		Delay:       r.delay,
		MaxDelay:    r.maxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       r.clock,
		Stop:        ctx.Done(),
	})

	if err != nil {
		job.Status = domain.JobAborted
		switch {
		case retry.IsAttemptsExceeded(err):
			err = errors.Wrapf(retry.LastError(err), errors.ErrCodeFatalTransfer,
				"chunk %d aborted after %d attempts", job.Chunk.Sequence, job.Attempts)
		case retry.IsRetryStopped(err):
			err = errors.Wrapf(retry.LastError(err), errors.ErrCodeFatalTransfer,
				"chunk %d upload cancelled", job.Chunk.Sequence)
		default:
			err = errors.Wrapf(err, errors.ErrCodeFatalTransfer,
				"chunk %d aborted", job.Chunk.Sequence)
		}
		job.LastErr = err
		return err
	}

	job.Status = domain.JobDone
	return nil
}

// IsRetryable classifies a single-attempt failure. Transient
// transport faults and 5xx-class store responses are retryable;
// auth failures, malformed requests, checksum mismatches and resume
// conflicts are fatal. Unknown errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch errors.Code(err) {
	case errors.ErrCodeFatalTransfer, errors.ErrCodeResumeConflict,
		errors.ErrCodeIntegrity, errors.ErrCodePermissionDenied, errors.ErrCodeConfig:
		return false
	case errors.ErrCodeRetryable:
		return true
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"ExpiredToken", "MalformedXML", "InvalidRequest", "InvalidArgument":
			return false
		case "RequestTimeout", "SlowDown", "InternalError", "ServiceUnavailable":
			return true
		}
	}

	var respErr *awshttp.ResponseError
	if stderrors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		switch {
		case status >= 500 || status == 429:
			return true
		case status >= 400:
			return false
		}
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if stderrors.Is(err, syscall.ECONNRESET) || stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return true
}

package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/logging"
)

const (
	requestTimeout = 120 * time.Second
	retryMax       = 3
	retryWaitMax   = 5 * time.Second
)

// NewHTTPClient returns the HTTP client shared by the provider clients. It
// retries connection failures, 429s and 5xx responses other than 500, and
// hands the final response back untouched so provider errors can be read.
func NewHTTPClient(log *logging.Logger) *http.Client {
	if log == nil {
		log = logging.Nop()
	}
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = requestTimeout
	retryClient.RetryWaitMax = retryWaitMax
	retryClient.RetryMax = retryMax
	retryClient.CheckRetry = dontRetry500StatusPolicy(retryablehttp.DefaultRetryPolicy)
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = retryLogger{log: log.Sub("llm.http")}
	return retryClient.StandardClient()
}

// dontRetry500StatusPolicy wraps policy so that 500 responses and finished
// contexts are never retried.
func dontRetry500StatusPolicy(policy retryablehttp.CheckRetry) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if resp != nil && resp.StatusCode == http.StatusInternalServerError {
			return false, err
		}
		return policy(ctx, resp, err)
	}
}

// retryLogger adapts the application logger to retryablehttp.LeveledLogger.
// The default logger writes to stderr, which the TUI owns.
type retryLogger struct {
	log *logging.Logger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.log.Warn().Fields(kv).Msg(msg) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.log.Debug().Fields(kv).Msg(msg) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.log.Trace().Fields(kv).Msg(msg) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.log.Warn().Fields(kv).Msg(msg) }

// Package indicators requests indicator recalculation from the external
// indicator service. Requests are best effort: the service's availability
// never affects the operation that triggered the recalculation.
package indicators

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout bounds one recalculation request.
const DefaultTimeout = 30 * time.Second

// MetricIndicatorRequestFailuresTotal counts failed recalculation
// requests.
const MetricIndicatorRequestFailuresTotal = "indicator_request_failures_total"

// Client calls the indicator service.
type Client struct {
	baseURL  string
	http     *http.Client
	logger   *slog.Logger
	failures prometheus.Counter
}

// NewClient creates a Client for the indicator service at baseURL. A nil
// logger falls back to slog.Default.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricIndicatorRequestFailuresTotal,
			Help: "Total number of failed indicator recalculation requests",
		}),
	}
}

// Register registers the client's metrics with the given registry.
func (c *Client) Register(reg prometheus.Registerer) error {
	return reg.Register(c.failures)
}

// RequestRecalc asks the indicator service to recompute all indicators
// for the given project and scenario. Failures are logged and swallowed;
// the returned error is always nil so callers cannot accidentally couple
// their outcome to the indicator service.
func (c *Client) RequestRecalc(ctx context.Context, projectID, scenarioID int64) error {
	params := url.Values{
		"scenario_id": {strconv.FormatInt(scenarioID, 10)},
		"project_id":  {strconv.FormatInt(projectID, 10)},
		"background":  {"true"},
	}
	endpoint := fmt.Sprintf("%s/indicators_saving/save_all?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		c.fail(projectID, scenarioID, slog.String("error", err.Error()))
		return nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.fail(projectID, scenarioID, slog.String("error", err.Error()), slog.String("url", endpoint))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.fail(projectID, scenarioID,
			slog.Int("status", resp.StatusCode), slog.String("url", endpoint))
		return nil
	}
	return nil
}

func (c *Client) fail(projectID, scenarioID int64, attrs ...slog.Attr) {
	c.failures.Inc()
	args := []any{slog.Int64("project_id", projectID), slog.Int64("scenario_id", scenarioID)}
	for _, a := range attrs {
		args = append(args, a)
	}
	c.logger.Warn("failed to request indicator recalculation", args...)
}

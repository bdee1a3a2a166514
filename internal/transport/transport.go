// Package transport talks to the Open mHealth data-point server.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/srg/pulsesync/internal/omh"
)

const (
	PathDataPoints      = "/v1.0.M1/dataPoints"
	PathMultiDataPoints = "/v1.0.M1/dataPoints/multi"
)

// StatusError is returned for any response outside 2xx.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type Client struct {
	http   *resty.Client
	logger *logrus.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(retryIdempotent).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: http, logger: logger}
}

// retryIdempotent retries reads on transport errors, 429 and 5xx. An upload is
// never retried here: the server may have stored it already, and the next sync
// tick posts whatever is still buffered.
func retryIdempotent(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
}

// PostBatch uploads points in a single request.
func (c *Client) PostBatch(ctx context.Context, token string, points []omh.PointRecord) error {
	c.logger.WithFields(logrus.Fields{
		"points": len(points),
	}).Debug("Posting data points")

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(points).
		Post(PathMultiDataPoints)
	if err != nil {
		return fmt.Errorf("failed to post data points: %w", err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return &StatusError{
			Method:     "POST",
			Path:       PathMultiDataPoints,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
		}
	}
	return nil
}

// GetPoints reads back the points of one schema created within [from, to).
func (c *Client) GetPoints(ctx context.Context, token, schema string, from, to time.Time) ([]omh.PointRecord, error) {
	var points []omh.PointRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{
			"schema_namespace":    omh.SchemaNamespace,
			"schema_name":         schema,
			"schema_version":      omh.SchemaVersion,
			"created_on_or_after": omh.FormatTime(from),
			"created_before":      omh.FormatTime(to),
		}).
		SetResult(&points).
		Get(PathDataPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to read data points: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, &StatusError{
			Method:     "GET",
			Path:       PathDataPoints,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
		}
	}

	c.logger.WithFields(logrus.Fields{
		"schema": schema,
		"points": len(points),
	}).Debug("Read data points")
	return points, nil
}

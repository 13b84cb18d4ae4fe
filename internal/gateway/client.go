// Package gateway provides the REST client for the upstream ticketing
// backend. The engine only reads from it; all writes stay with the backend.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// UpstreamError describes a gateway call that came back non-2xx.
type UpstreamError struct {
	Op     string
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gateway: %s returned status %d", e.Op, e.Status)
}

// Client wraps interactions with the ticketing backend API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a new client. The token is attached as a bearer
// credential on every request.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping checks if the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	c.decorate(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return &UpstreamError{Op: "health", Status: resp.StatusCode}
	}
	return nil
}

// ListCompanies returns every registered operator company.
func (c *Client) ListCompanies(ctx context.Context) ([]Company, error) {
	var companies []Company
	if err := c.getJSON(ctx, "companies", "/companies", nil, &companies); err != nil {
		return nil, err
	}
	return companies, nil
}

// GetCompany returns a single company by id.
func (c *Client) GetCompany(ctx context.Context, id int64) (Company, error) {
	var company Company
	if err := c.getJSON(ctx, "company", fmt.Sprintf("/companies/%d", id), nil, &company); err != nil {
		return Company{}, err
	}
	return company, nil
}

// ListVehicles returns the fleet, optionally restricted to one company.
func (c *Client) ListVehicles(ctx context.Context, companyID *int64) ([]Vehicle, error) {
	query := url.Values{}
	if companyID != nil {
		query.Set("company_id", strconv.FormatInt(*companyID, 10))
	}
	var vehicles []Vehicle
	if err := c.getJSON(ctx, "vehicles", "/vehicles", query, &vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

// ListBookings returns all bookings whose travel date falls inside the range,
// both endpoints inclusive. The endpoint has no reliable company filter, so
// callers join bookings to companies themselves via the vehicle id.
func (c *Client) ListBookings(ctx context.Context, from, to time.Time) ([]Booking, error) {
	query := url.Values{}
	query.Set("from", from.Format(dateLayout))
	query.Set("to", to.Format(dateLayout))
	var bookings []Booking
	if err := c.getJSON(ctx, "bookings", "/bookings", query, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// GetRevenueSeries returns the pre-bucketed revenue series used by charts.
func (c *Client) GetRevenueSeries(ctx context.Context, from, to time.Time, companyID *int64, granularity string) ([]RevenuePoint, error) {
	query := url.Values{}
	query.Set("from", from.Format(dateLayout))
	query.Set("to", to.Format(dateLayout))
	if granularity != "" {
		query.Set("granularity", granularity)
	}
	if companyID != nil {
		query.Set("company_id", strconv.FormatInt(*companyID, 10))
	}
	var points []RevenuePoint
	if err := c.getJSON(ctx, "revenue series", "/reports/revenue-series", query, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// GetBookingStatusCounts returns booking tallies grouped by status.
func (c *Client) GetBookingStatusCounts(ctx context.Context, companyID *int64) ([]StatusCount, error) {
	query := url.Values{}
	if companyID != nil {
		query.Set("company_id", strconv.FormatInt(*companyID, 10))
	}
	var counts []StatusCount
	if err := c.getJSON(ctx, "status counts", "/reports/booking-status-counts", query, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// GetBookingRouteCounts returns booking tallies grouped by route.
func (c *Client) GetBookingRouteCounts(ctx context.Context, companyID *int64) ([]RouteCount, error) {
	query := url.Values{}
	if companyID != nil {
		query.Set("company_id", strconv.FormatInt(*companyID, 10))
	}
	var counts []RouteCount
	if err := c.getJSON(ctx, "route counts", "/reports/booking-route-counts", query, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// ExportReport asks the backend to render a report and returns the raw
// payload unchanged, along with its content type.
func (c *Client) ExportReport(ctx context.Context, format string, from, to time.Time, companyID *int64) ([]byte, string, error) {
	query := url.Values{}
	query.Set("format", format)
	query.Set("from", from.Format(dateLayout))
	query.Set("to", to.Format(dateLayout))
	if companyID != nil {
		query.Set("company_id", strconv.FormatInt(*companyID, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/reports/export?%s", c.baseURL, query.Encode()), nil)
	if err != nil {
		return nil, "", err
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, "", &UpstreamError{Op: "export", Status: resp.StatusCode}
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return payload, resp.Header.Get("Content-Type"), nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, dest interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return &UpstreamError{Op: op, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("gateway: %s: decode: %w", op, err)
	}
	return nil
}

func (c *Client) decorate(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
}

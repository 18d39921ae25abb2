// Package api is the REST client for the workshop room service. It covers
// the CRUD surface the realtime reconciler depends on: fetching a room and
// replacing its stage sections.
//
// A circuit breaker guards every request so that a burst of foreign-update
// events against a failing server degrades into fast failures instead of a
// refetch storm.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/sprintroom/roomlink/internal/domain"
	"github.com/sprintroom/roomlink/internal/metrics"
)

const basePath = "/api/v1"

type Client struct {
	baseURL string
	httpc   *http.Client
	cb      circuitbreaker.CircuitBreaker[any]
}

// NewClient creates a room service client for the given server base URL
// (scheme and host, no path).
func NewClient(baseURL string) *Client {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("API circuit breaker state changed",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerState.Set(stateToFloat(e.NewState))
		}).
		Build()

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
		cb:      cb,
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// Health checks the service health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/health", nil, &out, "health")
}

// CreateRoom creates a new workshop room and returns it.
func (c *Client) CreateRoom(ctx context.Context, name, createdBy string) (*domain.Room, error) {
	body := map[string]string{"name": name, "created_by": createdBy}
	var room domain.Room
	if err := c.do(ctx, http.MethodPost, "/foundation/rooms", body, &room, "create_room"); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom fetches the authoritative room document.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(ctx, http.MethodGet, "/foundation/rooms/"+roomID, nil, &room, "get_room"); err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateFoundation replaces the room's foundation section.
func (c *Client) UpdateFoundation(ctx context.Context, roomID string, f domain.Foundation) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(ctx, http.MethodPut, "/foundation/rooms/"+roomID+"/foundation", f, &room, "update_foundation"); err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateDifferentiation replaces the room's differentiation section.
func (c *Client) UpdateDifferentiation(ctx context.Context, roomID string, d domain.Differentiation) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(ctx, http.MethodPut, "/foundation/rooms/"+roomID+"/differentiation", d, &room, "update_differentiation"); err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateApproach replaces the room's approach section.
func (c *Client) UpdateApproach(ctx context.Context, roomID string, a domain.Approach) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(ctx, http.MethodPut, "/foundation/rooms/"+roomID+"/approach", a, &room, "update_approach"); err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateStatus advances the room to the given workshop stage.
func (c *Client) UpdateStatus(ctx context.Context, roomID string, status domain.RoomStatus) (*domain.Room, error) {
	body := map[string]domain.RoomStatus{"status": status}
	var room domain.Room
	if err := c.do(ctx, http.MethodPut, "/foundation/rooms/"+roomID+"/status", body, &room, "update_status"); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, endpoint string) error {
	if !c.cb.TryAcquirePermit() {
		metrics.APIRequests.WithLabelValues(endpoint, "circuit_open").Inc()
		return externalError("service unavailable", circuitbreaker.ErrOpen)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.cb.RecordSuccess()
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+basePath+path, reader)
	if err != nil {
		c.cb.RecordSuccess()
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.cb.RecordError(err)
		metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
		return externalError("network request failed", err)
	}
	defer resp.Body.Close()

	metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= http.StatusBadRequest {
		// A 4xx is the server answering authoritatively; only 5xx counts
		// against the breaker.
		if resp.StatusCode >= http.StatusInternalServerError {
			c.cb.RecordError(fmt.Errorf("HTTP %d", resp.StatusCode))
		} else {
			c.cb.RecordSuccess()
		}
		return fromStatus(resp.StatusCode, readErrorMessage(resp.Body))
	}

	c.cb.RecordSuccess()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return externalError("decode response body", err)
		}
	}
	return nil
}

// readErrorMessage extracts the server's {"error": "..."} body, tolerating
// non-JSON responses.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Error
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/blackmoney/storefront/internal/models"
)

// CallRecorder receives one record per outbound service call.
// *metrics.AppMetrics satisfies it.
type CallRecorder interface {
	RecordServiceCall(ctx context.Context, service, operation string, start time.Time, success bool)
}

// Base is the shared REST client for the marketplace backend. Callers
// wire it with an otelhttp-instrumented transport in main.
type Base struct {
	baseURL   string
	client    *http.Client
	authToken string
	recorder  CallRecorder
}

func NewBase(baseURL, authToken string, client *http.Client) *Base {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Base{baseURL: strings.TrimRight(baseURL, "/"), client: client, authToken: authToken}
}

// SetRecorder attaches call metrics recording to every request.
func (b *Base) SetRecorder(r CallRecorder) {
	b.recorder = r
}

func (b *Base) getJSON(ctx context.Context, path string, out any) error {
	return b.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (b *Base) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return b.doJSON(ctx, http.MethodPost, path, body, out)
}

func (b *Base) doJSON(ctx context.Context, method, path string, body []byte, out any) (err error) {
	if b.recorder != nil {
		start := time.Now()
		op := method + " /" + rootSegment(path)
		defer func() {
			b.recorder.RecordServiceCall(ctx, "backend", op, start, err == nil)
		}()
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.authToken)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er struct {
			Detail string `json:"detail"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&er); decodeErr == nil && er.Detail != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, er.Detail, resp.StatusCode)
		}
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// rootSegment keeps metric labels bounded by dropping IDs and
// sub-resources from the path.
func rootSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// OrderClient talks to the order service.
type OrderClient struct {
	base *Base
}

func NewOrderClient(base *Base) *OrderClient {
	return &OrderClient{base: base}
}

// Create posts a cart snapshot plus address and computed total, and
// returns the created order.
func (c *OrderClient) Create(ctx context.Context, draft models.OrderDraft) (*models.Order, error) {
	var order models.Order
	if err := c.base.postJSON(ctx, "/orders", draft, &order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return &order, nil
}

// Tracking fetches the delivery history for an order.
func (c *OrderClient) Tracking(ctx context.Context, orderID string) ([]models.TrackingEvent, error) {
	var events []models.TrackingEvent
	if err := c.base.getJSON(ctx, "/orders/"+orderID+"/tracking", &events); err != nil {
		return nil, fmt.Errorf("failed to fetch tracking: %w", err)
	}
	return events, nil
}

// SettingsClient fetches the platform rate snapshot. Concurrent
// fetches collapse into one request.
type SettingsClient struct {
	base *Base
	sfg  singleflight.Group
}

func NewSettingsClient(base *Base) *SettingsClient {
	return &SettingsClient{base: base}
}

// Fetch returns the current platform settings. Each checkout session
// calls this once and holds the snapshot for its whole duration.
func (c *SettingsClient) Fetch(ctx context.Context) (models.PlatformSettings, error) {
	v, err, _ := c.sfg.Do("platform-settings", func() (any, error) {
		var settings models.PlatformSettings
		if err := c.base.getJSON(ctx, "/platform-settings", &settings); err != nil {
			return models.PlatformSettings{}, fmt.Errorf("failed to fetch platform settings: %w", err)
		}
		return settings, nil
	})
	if err != nil {
		return models.PlatformSettings{}, err
	}
	return v.(models.PlatformSettings), nil
}

// AddressClient talks to the address book service.
type AddressClient struct {
	base *Base
}

func NewAddressClient(base *Base) *AddressClient {
	return &AddressClient{base: base}
}

func (c *AddressClient) List(ctx context.Context) ([]models.Address, error) {
	var addresses []models.Address
	if err := c.base.getJSON(ctx, "/addresses", &addresses); err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	return addresses, nil
}

func (c *AddressClient) Create(ctx context.Context, addr models.Address) (*models.Address, error) {
	var created models.Address
	if err := c.base.postJSON(ctx, "/addresses", addr, &created); err != nil {
		return nil, fmt.Errorf("failed to create address: %w", err)
	}
	return &created, nil
}

// Get returns one address from the book, or nil when absent.
func (c *AddressClient) Get(ctx context.Context, id string) (*models.Address, error) {
	addresses, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range addresses {
		if addresses[i].ID == id {
			return &addresses[i], nil
		}
	}
	return nil, nil
}

// Package licenseclient клиент удалённого сервера лицензий.
package licenseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// APIError ответ сервера с кодом, отличным от 2xx.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("license server: status %d: %s", e.StatusCode, e.Message)
}

// Permanent повтор запроса не поможет.
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// IsPermanent ошибка является постоянной ошибкой API.
func IsPermanent(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Permanent()
}

// Client клиент HTTP API сервера лицензий.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент с таймаутом timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// ValidateLicense POST /api/license/validate
func (c *Client) ValidateLicense(ctx context.Context, email, hardwareID string) (*models.ValidateResponse, error) {
	const op = "licenseclient.ValidateLicense"
	req, err := c.newRequest(ctx, http.MethodPost, "/api/license/validate", models.ValidateRequest{
		Email:      email,
		HardwareID: hardwareID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var out models.ValidateResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &out, nil
}

// UpdateUsage POST /api/license/update_usage
func (c *Client) UpdateUsage(ctx context.Context, usage models.UpdateUsageRequest) (*models.UpdateUsageResponse, error) {
	const op = "licenseclient.UpdateUsage"
	req, err := c.newRequest(ctx, http.MethodPost, "/api/license/update_usage", usage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var out models.UpdateUsageResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &out, nil
}

// RegisterDemo POST /api/demo/register
func (c *Client) RegisterDemo(ctx context.Context, email string) (*models.DemoResponse, error) {
	const op = "licenseclient.RegisterDemo"
	req, err := c.newRequest(ctx, http.MethodPost, "/api/demo/register", models.DemoRegisterRequest{Email: email})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var out models.DemoResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &out, nil
}

// DemoStatus GET /api/demo/status/{email}
func (c *Client) DemoStatus(ctx context.Context, email string) (*models.DemoResponse, error) {
	const op = "licenseclient.DemoStatus"
	req, err := c.newRequest(ctx, http.MethodGet, "/api/demo/status/"+url.PathEscape(email), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var out models.DemoResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &out, nil
}

// CreatePayment POST /api/payment/create
func (c *Client) CreatePayment(ctx context.Context, email, pkg string) (*models.PaymentCreateResponse, error) {
	const op = "licenseclient.CreatePayment"
	req, err := c.newRequest(ctx, http.MethodPost, "/api/payment/create", models.PaymentCreateRequest{
		Email:   email,
		Package: pkg,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var out models.PaymentCreateResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &out, nil
}

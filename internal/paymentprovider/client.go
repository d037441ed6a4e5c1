// Package paymentprovider клиент платёжного провайдера (API в стиле ЮKassa):
// создание платежа с подтверждением через redirect и проверка подписи webhook.
package paymentprovider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/cohost-credits/internal/config"
)

// Client HTTP-клиент провайдера.
type Client struct {
	shopID     string
	secretKey  string
	apiURL     string
	returnURL  string
	httpClient *http.Client
}

// NewClient создаёт клиент по настройкам провайдера.
func NewClient(cfg config.PaymentProvider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		shopID:     cfg.ShopID,
		secretKey:  cfg.SecretKey,
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		returnURL:  cfg.ReturnURL,
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
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.shopID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// CreateRedirectPayment создаёт платёж на amount с подтверждением через redirect.
// idempotenceKey защищает от двойного создания при повторе запроса; пустой
// ключ заменяется на uuid.
func (c *Client) CreateRedirectPayment(ctx context.Context, amount Amount, description string, metadata map[string]string, idempotenceKey string) (*CreatePaymentResponse, error) {
	const op = "paymentprovider.CreateRedirectPayment"
	if idempotenceKey == "" {
		idempotenceKey = uuid.NewString()
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/payments", CreatePaymentRequest{
		Amount:  amount,
		Capture: true,
		Confirmation: Confirmation{
			Type:      "redirect",
			ReturnURL: c.returnURL,
		},
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Idempotence-Key", idempotenceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s: unexpected status %s: %s", op, resp.Status, strings.TrimSpace(string(msg)))
	}

	var paymentResp CreatePaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&paymentResp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if paymentResp.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("%s: provider returned no confirmation url", op)
	}
	return &paymentResp, nil
}

// Sign подпись тела webhook: base64(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature сравнивает подпись за постоянное время.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

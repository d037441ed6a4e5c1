package paymentprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/cohost-credits/internal/config"
)

func TestCreateRedirectPayment(t *testing.T) {
	var (
		got     CreatePaymentRequest
		idemKey string
		auth    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		idemKey = r.Header.Get("Idempotence-Key")
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(CreatePaymentResponse{
			ID:           "pay-1",
			Status:       "pending",
			Amount:       got.Amount,
			Confirmation: Confirmation{Type: "redirect", ConfirmationURL: "https://pay.example/confirm"},
		})
	}))
	defer srv.Close()

	c := NewClient(config.PaymentProvider{
		APIURL: srv.URL, ShopID: "shop", SecretKey: "key", ReturnURL: "https://cohost.app/done",
	}, time.Second)

	resp, err := c.CreateRedirectPayment(context.Background(),
		Amount{Value: "250000.00", Currency: "IDR"}, "pro package",
		map[string]string{"email": "a@b.c", "package": "pro"}, "")
	require.NoError(t, err)

	assert.Equal(t, "pay-1", resp.ID)
	assert.Equal(t, "https://pay.example/confirm", resp.Confirmation.ConfirmationURL)
	assert.NotEmpty(t, idemKey)
	assert.Equal(t, "Basic c2hvcDprZXk=", auth)
	assert.True(t, got.Capture)
	assert.Equal(t, "redirect", got.Confirmation.Type)
	assert.Equal(t, "https://cohost.app/done", got.Confirmation.ReturnURL)
	assert.Equal(t, "pro", got.Metadata["package"])
}

func TestCreateRedirectPayment_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "provider error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"invalid_request"}`))
			},
		},
		{
			name: "no confirmation url",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(CreatePaymentResponse{ID: "pay-1"})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(config.PaymentProvider{APIURL: srv.URL}, time.Second)
			_, err := c.CreateRedirectPayment(context.Background(), Amount{Value: "1.00", Currency: "IDR"}, "", nil, "key-1")
			assert.Error(t, err)
		})
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"payment.succeeded"}`)
	sig := Sign("secret", body)

	assert.True(t, VerifySignature("secret", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("secret", []byte(`{}`), sig))
	assert.False(t, VerifySignature("secret", body, ""))
	assert.False(t, VerifySignature("", body, sig))
}

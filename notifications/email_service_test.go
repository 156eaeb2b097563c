package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBrevoService_Send(t *testing.T) {
	req := require.New(t)

	var got brevoPayload
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"1"}`))
	}))
	defer srv.Close()

	m, ok := NewMailer("key-123", "noreply@ridehub.test", "RideHub", zap.NewNop()).(*BrevoService)
	req.True(ok)
	m.Endpoint = srv.URL

	req.NoError(m.Send(context.Background(), Recipient{Email: "ada@example.com"}, "Unread messages", "<p>hi</p>"))
	req.Equal("key-123", apiKey)
	req.Equal("Unread messages", got.Subject)
	req.Equal("<p>hi</p>", got.HTMLContent)
	req.Equal([]map[string]string{{"email": "ada@example.com", "name": "ada"}}, got.To)
	req.Equal("RideHub", got.Sender["name"])
}

func TestBrevoService_SendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewMailer("key", "noreply@ridehub.test", "RideHub", zap.NewNop()).(*BrevoService)
	m.Endpoint = srv.URL

	err := m.Send(context.Background(), Recipient{Name: "Ada", Email: "ada@example.com"}, "s", "b")
	require.ErrorContains(t, err, "status 401")

	require.Error(t, m.Send(context.Background(), Recipient{Email: "not-an-email"}, "s", "b"))
}

func TestNewMailer_Unconfigured(t *testing.T) {
	m := NewMailer("", "noreply@ridehub.test", "RideHub", zap.NewNop())
	require.IsType(t, logMailer{}, m)
	require.NoError(t, m.Send(context.Background(), Recipient{Email: "ada@example.com"}, "s", "b"))
}

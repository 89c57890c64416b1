package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"polisdesk/backend/internal/domain"
)

func TestHTTPRelaySendsPayload(t *testing.T) {
	var got relayRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true,"message_id":"m-42"}`))
	}))
	defer server.Close()

	relay := NewHTTPRelay(server.Client(), map[string]Endpoint{
		domain.ChannelMAX: {URL: server.URL, BotToken: "token-1"},
	})

	res, err := relay.Send(context.Background(), domain.ChannelMAX, Message{ChatID: "777", Text: "Полис готов", MediaURL: "https://files.example/p.pdf", MediaType: "document"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Success || res.MessageID != "m-42" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got.BotToken != "token-1" || got.ChatID != "777" || got.Message != "Полис готов" || got.MediaType != "document" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestHTTPRelayStructuredFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"no chat", http.StatusOK, `{"success":false,"error":"chat not found","error_code":"NO_CHAT"}`, CodeNoChat},
		{"api error without code", http.StatusBadGateway, `{"success":false,"error":"upstream 500"}`, CodeAPIError},
		{"garbage body", http.StatusInternalServerError, `<html>oops</html>`, CodeAPIError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			relay := NewHTTPRelay(server.Client(), map[string]Endpoint{domain.ChannelWhatsApp: {URL: server.URL}})
			res, err := relay.Send(context.Background(), domain.ChannelWhatsApp, Message{Phone: "+79990001122", Text: "hi"})
			if err != nil {
				t.Fatalf("integration failures must not be Go errors: %v", err)
			}
			if res.Success || res.ErrorCode != tc.code || res.Error == "" {
				t.Fatalf("unexpected result %+v", res)
			}
			if atomic.LoadInt32(&calls) != 1 {
				t.Fatalf("expected exactly one attempt, got %d", calls)
			}
		})
	}
}

func TestHTTPRelayChannelChecks(t *testing.T) {
	relay := NewHTTPRelay(nil, map[string]Endpoint{domain.ChannelSMS: {URL: "  "}})

	if _, err := relay.Send(context.Background(), "pigeon", Message{Text: "x"}); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
	res, err := relay.Send(context.Background(), domain.ChannelSMS, Message{Text: "x"})
	if err != nil || res.ErrorCode != CodeNotConfigured {
		t.Fatalf("expected NOT_CONFIGURED, got %+v, %v", res, err)
	}
}

func TestUserMessage(t *testing.T) {
	if !strings.Contains(UserMessage(CodeNoChat, ""), "не писал боту") {
		t.Fatalf("unexpected NO_CHAT message")
	}
	if got := UserMessage(CodeAPIError, "rate limited"); got != "Ошибка сервиса отправки: rate limited" {
		t.Fatalf("API_ERROR detail must be surfaced verbatim, got %q", got)
	}
	if UserMessage("", "") != "" {
		t.Fatalf("no code means no message")
	}
}

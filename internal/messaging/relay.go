// Package messaging talks to the per-channel relay functions that deliver
// messages through WhatsApp, Telegram, MAX and SMS providers.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"polisdesk/backend/internal/domain"
)

// Error codes returned by the relays, plus the ones this client produces.
const (
	CodeNoChat        = "NO_CHAT"
	CodeAPIError      = "API_ERROR"
	CodeNotConfigured = "NOT_CONFIGURED"
	CodeTransport     = "TRANSPORT_ERROR"
)

var ErrUnknownChannel = errors.New("unknown messaging channel")

type Message struct {
	ChatID    string
	Phone     string
	Text      string
	MediaURL  string
	MediaType string
}

// Result mirrors the relay reply. Integration failures come back here with
// Success false rather than as a Go error.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

type Relay interface {
	Send(ctx context.Context, channel string, msg Message) (Result, error)
}

type Endpoint struct {
	URL      string
	BotToken string
}

// HTTPRelay posts to one relay function per channel. It never retries.
type HTTPRelay struct {
	client    *http.Client
	endpoints map[string]Endpoint
}

func NewHTTPRelay(client *http.Client, endpoints map[string]Endpoint) *HTTPRelay {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	copied := make(map[string]Endpoint, len(endpoints))
	for channel, ep := range endpoints {
		if strings.TrimSpace(ep.URL) == "" {
			continue
		}
		copied[channel] = ep
	}
	return &HTTPRelay{client: client, endpoints: copied}
}

type relayRequest struct {
	BotToken  string `json:"bot_token,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Message   string `json:"message"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

func (r *HTTPRelay) Send(ctx context.Context, channel string, msg Message) (Result, error) {
	if !domain.IsChannel(channel) {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	ep, ok := r.endpoints[channel]
	if !ok {
		return Result{Success: false, ErrorCode: CodeNotConfigured, Error: channel + " relay is not configured"}, nil
	}

	body, err := json.Marshal(relayRequest{
		BotToken:  ep.BotToken,
		ChatID:    msg.ChatID,
		Phone:     msg.Phone,
		Message:   msg.Text,
		MediaURL:  msg.MediaURL,
		MediaType: msg.MediaType,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{Success: false, ErrorCode: CodeTransport, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{Success: false, ErrorCode: CodeTransport, Error: err.Error()}, nil
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Result{Success: false, ErrorCode: CodeAPIError, Error: fmt.Sprintf("relay responded %d", resp.StatusCode)}, nil
	}
	if resp.StatusCode >= 300 && result.Success {
		result.Success = false
	}
	if !result.Success && result.ErrorCode == "" {
		result.ErrorCode = CodeAPIError
	}
	if !result.Success && result.Error == "" {
		result.Error = fmt.Sprintf("relay responded %d", resp.StatusCode)
	}
	return result, nil
}

// UserMessage turns a relay error into the reason shown to the agent.
func UserMessage(code string, detail string) string {
	switch code {
	case "":
		return ""
	case CodeNoChat:
		return "Клиент ещё не писал боту. Отправить сообщение на номер телефона через этот канал нельзя."
	case CodeNotConfigured:
		return "Канал отправки не настроен."
	case CodeTransport:
		return "Сервис отправки недоступен. Попробуйте позже."
	case CodeAPIError:
		if strings.TrimSpace(detail) != "" {
			return "Ошибка сервиса отправки: " + detail
		}
		return "Ошибка сервиса отправки."
	}
	return "Не удалось отправить сообщение."
}

package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/mask"
	"polisdesk/backend/internal/messaging"
	"polisdesk/backend/internal/xid"
)

// SendMessage hands one message to the channel relay and records the
// attempt. Relay failures come back in the response, not as an error.
func (s *Service) SendMessage(ctx context.Context, req domain.MessageSendRequest) (domain.MessageSendResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.MessageSendResponse{}, err
	}
	if !domain.IsChannel(req.Channel) {
		return domain.MessageSendResponse{}, fmt.Errorf("%w: %q", messaging.ErrUnknownChannel, req.Channel)
	}
	text := strings.TrimSpace(req.Message)
	if text == "" && strings.TrimSpace(req.MediaURL) == "" {
		return domain.MessageSendResponse{}, fmt.Errorf("%w: message is empty", ErrInvalidMessage)
	}

	msg := messaging.Message{
		ChatID:    strings.TrimSpace(req.ChatID),
		Text:      text,
		MediaURL:  strings.TrimSpace(req.MediaURL),
		MediaType: strings.TrimSpace(req.MediaType),
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" && msg.ChatID == "" && req.ClientID != "" {
		client, err := s.repo.GetClient(ctx, req.ClientID)
		if err != nil {
			return domain.MessageSendResponse{}, err
		}
		phone = client.Phone
	}
	if phone != "" {
		normalized, err := mask.NormalizePhone(phone)
		if err != nil {
			return domain.MessageSendResponse{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		msg.Phone = normalized
	}
	if msg.ChatID == "" && msg.Phone == "" {
		return domain.MessageSendResponse{}, fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}

	result := messaging.Result{Success: false, ErrorCode: messaging.CodeNotConfigured, Error: "no relay"}
	if s.relay != nil {
		result, err = s.relay.Send(ctx, req.Channel, msg)
		if err != nil {
			return domain.MessageSendResponse{}, err
		}
	}

	recipient := msg.ChatID
	if recipient == "" {
		recipient = msg.Phone
	}
	status := domain.MessageStatusSent
	if !result.Success {
		status = domain.MessageStatusFailed
		log.Printf("[messaging] WARN: %s send to %s failed code=%s: %s", req.Channel, recipient, result.ErrorCode, result.Error)
	}
	if err := s.repo.CreateMessageLog(ctx, domain.MessageLog{
		ID:        xid.New("msg"),
		StoreID:   s.storeID(req.StoreID),
		ClientID:  req.ClientID,
		Channel:   req.Channel,
		Recipient: recipient,
		Status:    status,
		ErrorCode: result.ErrorCode,
		MessageID: result.MessageID,
		SentBy:    actor.Username,
		CreatedAt: s.now(),
	}); err != nil {
		log.Printf("[messaging] WARN: failed to write message log channel=%s: %v", req.Channel, err)
	}

	resp := domain.MessageSendResponse{
		Success:   result.Success,
		MessageID: result.MessageID,
	}
	if !result.Success {
		resp.ErrorCode = result.ErrorCode
		resp.Error = result.Error
		resp.UserMessage = messaging.UserMessage(result.ErrorCode, result.Error)
	}
	return resp, nil
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/mask"
	"polisdesk/backend/internal/store"
	"polisdesk/backend/internal/xid"
)

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	name := strings.Join(strings.Fields(req.FullName), " ")
	if name == "" {
		return domain.Client{}, invalidInput("full_name is required")
	}
	phone := ""
	if strings.TrimSpace(req.Phone) != "" {
		normalized, err := mask.NormalizePhone(req.Phone)
		if err != nil {
			return domain.Client{}, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
		}
		phone = normalized
	}

	created, err := s.repo.CreateClient(ctx, domain.Client{
		ID:        xid.New("client"),
		FullName:  name,
		Phone:     phone,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "", "client_create", "client", created.ID, created.FullName)
	return *created, nil
}

func (s *Service) ListClients(ctx context.Context, search string, limit int) ([]domain.Client, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListClients(ctx, search, limit)
}

// ArchiveDocument stores the data a printed document was produced from so
// it can be reprinted later. Data must be a JSON object or array.
func (s *Service) ArchiveDocument(ctx context.Context, clientID string, req domain.DocumentArchiveRequest) (domain.DocumentArchive, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.DocumentArchive{}, err
	}
	if !domain.IsDocumentType(req.Type) {
		return domain.DocumentArchive{}, fmt.Errorf("%w: unknown type %q", ErrInvalidDocument, req.Type)
	}
	data := bytes.TrimSpace(req.DocumentData)
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') || !json.Valid(data) {
		return domain.DocumentArchive{}, fmt.Errorf("%w: document_data must be a JSON object or array", ErrInvalidDocument)
	}

	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return domain.DocumentArchive{}, err
	}

	doc, err := s.repo.CreateDocument(ctx, domain.DocumentArchive{
		ID:           xid.New("doc"),
		ClientID:     client.ID,
		Type:         req.Type,
		DocumentData: json.RawMessage(data),
		CreatedBy:    actor.Username,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return domain.DocumentArchive{}, err
	}

	s.logAudit(ctx, "", "document_archive", "document", doc.ID, "type="+doc.Type+",client="+client.ID)
	return *doc, nil
}

func (s *Service) ListClientDocuments(ctx context.Context, clientID string, limit int) (domain.DocumentListResponse, error) {
	if _, err := s.repo.GetClient(ctx, clientID); err != nil {
		return domain.DocumentListResponse{}, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	docs, err := s.repo.ListDocumentsByClient(ctx, clientID, limit)
	if err != nil {
		return domain.DocumentListResponse{}, err
	}
	return domain.DocumentListResponse{Documents: docs}, nil
}

func (s *Service) GetDocument(ctx context.Context, id string) (domain.DocumentArchive, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return domain.DocumentArchive{}, err
	}
	return *doc, nil
}

func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	s.logAudit(ctx, "", "document_delete", "document", id, "")
	return nil
}

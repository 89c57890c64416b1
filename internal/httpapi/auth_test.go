package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"polisdesk/backend/internal/domain"
	storepkg "polisdesk/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, "123456", store)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestCreateAgentStoresPasswordHash(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, "123456", store)
	agent, err := manager.CreateAgent(context.Background(), domain.AgentCreateRequest{
		Username: "Smirnova",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create agent failed: %v", err)
	}
	if agent.Username != "smirnova" || agent.Role != domain.RoleAgent {
		t.Fatalf("unexpected agent %+v", agent)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "smirnova" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected agent to be saved")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "smirnova", Password: "pass1234"}); err != nil {
		t.Fatalf("login with hashed agent failed: %v", err)
	}

	agents := manager.ListAgents(context.Background())
	if len(agents) != 1 || agents[0].Username != "smirnova" {
		t.Fatalf("expected only the new agent to be listed, got %+v", agents)
	}
}

func TestCreateAgentValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "123456", &userStoreStub{users: map[string]domain.UserAccount{}})

	cases := []struct {
		name string
		req  domain.AgentCreateRequest
		want error
	}{
		{name: "short username", req: domain.AgentCreateRequest{Username: "ab", Password: "pass1234"}, want: ErrInvalidAgent},
		{name: "space in username", req: domain.AgentCreateRequest{Username: "anna k", Password: "pass1234"}, want: ErrInvalidAgent},
		{name: "short password", req: domain.AgentCreateRequest{Username: "annak", Password: "123"}, want: ErrInvalidAgent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := manager.CreateAgent(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := manager.CreateAgent(context.Background(), domain.AgentCreateRequest{Username: "annak", Password: "pass1234"}); err != nil {
		t.Fatalf("create agent failed: %v", err)
	}
	if _, err := manager.CreateAgent(context.Background(), domain.AgentCreateRequest{Username: "AnnaK", Password: "pass1234"}); !errors.Is(err, storepkg.ErrConflict) {
		t.Fatalf("expected duplicate username conflict, got %v", err)
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, "654321", store)

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}

	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}

	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}

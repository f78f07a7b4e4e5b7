package core

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/model"
)

func scanAgentRow(a model.Agent) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = a.ID
		*dest[1].(*string) = a.Name
		*dest[2].(*string) = a.Host
		*dest[3].(*int) = a.Port
		*dest[4].(*string) = a.SSHUser
		*dest[5].(*string) = a.PublicKey
		*dest[6].(*string) = a.PrivateKey
		*dest[7].(*string) = a.Fingerprint
		*dest[8].(*time.Time) = a.CreatedAt
		*dest[9].(*time.Time) = a.UpdatedAt
		return nil
	}
}

func TestAgentService_CreateAndGet(t *testing.T) {
	db := &mockDB{}
	svc := NewAgentService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	agent := &model.Agent{
		ID:      "agent-1",
		Name:    "web-01",
		Host:    "web-01.internal",
		Port:    22,
		SSHUser: "backup",
	}
	require.NoError(t, svc.Create(ctx, agent))

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: scanAgentRow(*agent)})

	got, err := svc.GetByID(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, agent, got)
}

func TestAgentService_SetKeyPair(t *testing.T) {
	db := &mockDB{}
	svc := NewAgentService(db)
	ctx := context.Background()

	db.On("Exec", ctx, sqlContains("public_key"),
		[]any{"pub", "priv", "SHA256:abc", "agent-1"}).
		Return(pgconn.CommandTag{}, nil)

	require.NoError(t, svc.SetKeyPair(ctx, "agent-1", "pub", "priv", "SHA256:abc"))
	db.AssertExpectations(t)
}

func TestAgentService_List_HasMore(t *testing.T) {
	db := &mockDB{}
	svc := NewAgentService(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), []any{2}).
		Return(newMockRows(
			scanAgentRow(model.Agent{ID: "agent-1"}),
			scanAgentRow(model.Agent{ID: "agent-2"}),
		), nil)

	agents, hasMore, err := svc.List(ctx, 1, "")
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-1", agents[0].ID)
}

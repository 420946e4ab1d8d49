package services

import (
	"context"

	"agentchain/backend/pkg/models"
)

// ChatClient sends one message to the agent chat service and returns the
// full reply.
type ChatClient interface {
	ChatOnce(ctx context.Context, payload *models.ChatPayload) (string, error)
}

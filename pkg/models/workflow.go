// Package models defines the domain models for the workflow service
package models

import (
	"time"
)

// Workflow is an ordered chain of published agents owned by a single user.
type Workflow struct {
	ID        int64     `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Intro     *string   `json:"intro,omitempty" db:"intro"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Node is one step of a workflow. Seq is the explicit 0-based position.
type Node struct {
	ID         int64     `json:"id" db:"id"`
	WorkflowID int64     `json:"workflow_id" db:"workflow_id"`
	Seq        int       `json:"seq" db:"seq"`
	AgentID    string    `json:"agent_id" db:"agent_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// WorkflowDetail is a workflow together with its agent ids in seq order.
type WorkflowDetail struct {
	*Workflow
	AgentIDs []string `json:"agent_ids"`
}

// NewWorkflowDetail builds a detail view from a workflow and its nodes.
// Nodes are expected to be sorted by Seq already.
func NewWorkflowDetail(wf *Workflow, nodes []Node) *WorkflowDetail {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.AgentID)
	}
	return &WorkflowDetail{Workflow: wf, AgentIDs: ids}
}

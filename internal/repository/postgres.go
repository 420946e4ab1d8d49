package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agentchain/backend/internal/logging"
	"agentchain/backend/pkg/models"
)

const (
	workflowColumns = "id, user_id, name, intro, created_at, updated_at"
	nodeColumns     = "id, workflow_id, seq, agent_id, created_at"
	agentColumns    = "id, user_id, name, model, plugins, knowledge_base, status, created_at, updated_at"
)

// PostgresStore is a PostgreSQL implementation of Repository.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *logging.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool, logger *logging.Logger) *PostgresStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PostgresStore{db: db, logger: logger.With("component", "postgres_store")}
}

// CreateWorkflow inserts a workflow and assigns its ID.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	err := s.db.QueryRow(ctx,
		"INSERT INTO workflows (user_id, name, intro, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		wf.OwnerID, wf.Name, wf.Intro, wf.CreatedAt, wf.UpdatedAt,
	).Scan(&wf.ID)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

// ListWorkflowsByOwner returns the owner's workflows, most recently updated first.
func (s *PostgresStore) ListWorkflowsByOwner(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE user_id = $1 ORDER BY updated_at DESC, id DESC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	workflows, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[models.Workflow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflows: %w", err)
	}
	return workflows, nil
}

// GetWorkflow retrieves a workflow by its ID.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error) {
	return getWorkflow(ctx, s.db, id)
}

// GetWorkflowDetail reads the workflow and its nodes inside one read-only
// repeatable read transaction.
func (s *PostgresStore) GetWorkflowDetail(ctx context.Context, id int64) (*models.WorkflowDetail, error) {
	var detail *models.WorkflowDetail
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		wf, err := getWorkflow(ctx, tx, id)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx,
			"SELECT "+nodeColumns+" FROM workflow_nodes WHERE workflow_id = $1 ORDER BY seq", id)
		if err != nil {
			return fmt.Errorf("failed to query nodes: %w", err)
		}
		nodes, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Node])
		if err != nil {
			return fmt.Errorf("failed to scan nodes: %w", err)
		}
		detail = models.NewWorkflowDetail(wf, nodes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ReplaceNodes deletes the current nodes and inserts agentIDs with seq
// 0..n-1, all in one transaction.
func (s *PostgresStore) ReplaceNodes(ctx context.Context, workflowID int64, agentIDs []string, at time.Time) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "UPDATE workflows SET updated_at = $2 WHERE id = $1", workflowID, at)
		if err != nil {
			return fmt.Errorf("failed to touch workflow: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("workflow %d: %w", workflowID, models.ErrNotFound)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflowID); err != nil {
			return fmt.Errorf("failed to delete nodes: %w", err)
		}
		if len(agentIDs) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"workflow_nodes"},
			[]string{"workflow_id", "seq", "agent_id", "created_at"},
			pgx.CopyFromSlice(len(agentIDs), func(i int) ([]any, error) {
				return []any{workflowID, i, agentIDs[i], at}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to insert nodes: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("workflow nodes replaced", "workflow_id", workflowID, "nodes", len(agentIDs))
	return nil
}

// DeleteWorkflow removes a workflow and its nodes.
func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", id); err != nil {
			return fmt.Errorf("failed to delete nodes: %w", err)
		}
		tag, err := tx.Exec(ctx, "DELETE FROM workflows WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete workflow: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("workflow %d: %w", id, models.ErrNotFound)
		}
		return nil
	})
}

// GetAgent retrieves an agent by its ID.
func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	rows, err := s.db.Query(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}
	agent, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.Agent])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}
	return agent, nil
}

// UpsertAgent inserts or overwrites an agent by id.
func (s *PostgresStore) UpsertAgent(ctx context.Context, a *models.Agent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			model = EXCLUDED.model,
			plugins = EXCLUDED.plugins,
			knowledge_base = EXCLUDED.knowledge_base,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.OwnerID, a.Name, a.Model, a.Plugins, a.KnowledgeBases, string(a.Status), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", a.ID, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getWorkflow(ctx context.Context, q querier, id int64) (*models.Workflow, error) {
	rows, err := q.Query(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow: %w", err)
	}
	wf, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.Workflow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workflow %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}
	return wf, nil
}

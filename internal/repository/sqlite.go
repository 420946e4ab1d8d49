package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"agentchain/backend/internal/logging"
	"agentchain/backend/pkg/models"
)

// OpenSQLite opens a SQLite database file with foreign keys and WAL enabled.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer at a time; transactions queue on the pool instead of failing
	// with SQLITE_BUSY
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLiteStore is a SQLite implementation of Repository for single node
// deployments and local development.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db *sql.DB, logger *logging.Logger) *SQLiteStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SQLiteStore{db: db, logger: logger.With("component", "sqlite_store")}
}

// CreateWorkflow inserts a workflow and assigns its ID.
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO workflows (user_id, name, intro, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		wf.OwnerID, wf.Name, wf.Intro, wf.CreatedAt.UTC(), wf.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read workflow id: %w", err)
	}
	wf.ID = id
	return nil
}

// ListWorkflowsByOwner returns the owner's workflows, most recently updated first.
func (s *SQLiteStore) ListWorkflowsByOwner(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE user_id = ? ORDER BY updated_at DESC, id DESC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*models.Workflow{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// GetWorkflow retrieves a workflow by its ID.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error) {
	return sqliteGetWorkflow(ctx, s.db, id)
}

// GetWorkflowDetail reads the workflow and its nodes inside one transaction.
func (s *SQLiteStore) GetWorkflowDetail(ctx context.Context, id int64) (*models.WorkflowDetail, error) {
	var detail *models.WorkflowDetail
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		wf, err := sqliteGetWorkflow(ctx, tx, id)
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			"SELECT "+nodeColumns+" FROM workflow_nodes WHERE workflow_id = ? ORDER BY seq", id)
		if err != nil {
			return fmt.Errorf("failed to query nodes: %w", err)
		}
		defer rows.Close()

		var nodes []models.Node
		for rows.Next() {
			var n models.Node
			if err := rows.Scan(&n.ID, &n.WorkflowID, &n.Seq, &n.AgentID, &n.CreatedAt); err != nil {
				return fmt.Errorf("failed to scan node: %w", err)
			}
			nodes = append(nodes, n)
		}
		if err := rows.Err(); err != nil {
			return err
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
func (s *SQLiteStore) ReplaceNodes(ctx context.Context, workflowID int64, agentIDs []string, at time.Time) error {
	at = at.UTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE workflows SET updated_at = ? WHERE id = ?", at, workflowID)
		if err != nil {
			return fmt.Errorf("failed to touch workflow: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("workflow %d: %w", workflowID, models.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = ?", workflowID); err != nil {
			return fmt.Errorf("failed to delete nodes: %w", err)
		}
		for seq, agentID := range agentIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO workflow_nodes (workflow_id, seq, agent_id, created_at) VALUES (?, ?, ?, ?)",
				workflowID, seq, agentID, at); err != nil {
				return fmt.Errorf("failed to insert node %d: %w", seq, err)
			}
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
func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete nodes: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete workflow: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("workflow %d: %w", id, models.ErrNotFound)
		}
		return nil
	})
}

// GetAgent retrieves an agent by its ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	err := s.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = ?", id).Scan(
		&a.ID, &a.OwnerID, &a.Name, &a.Model, &a.Plugins, &a.KnowledgeBases, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}
	return &a, nil
}

// UpsertAgent inserts or overwrites an agent by id.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, a *models.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			model = excluded.model,
			plugins = excluded.plugins,
			knowledge_base = excluded.knowledge_base,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		a.ID, a.OwnerID, a.Name, a.Model, a.Plugins, a.KnowledgeBases, string(a.Status), a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", a.ID, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("failed to close sqlite database", "error", err)
	}
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func sqliteGetWorkflow(ctx context.Context, q rowQuerier, id int64) (*models.Workflow, error) {
	wf, err := scanWorkflow(q.QueryRowContext(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %d: %w", id, models.ErrNotFound)
	}
	return wf, err
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var wf models.Workflow
	var intro sql.NullString
	if err := row.Scan(&wf.ID, &wf.OwnerID, &wf.Name, &intro, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}
	if intro.Valid {
		wf.Intro = &intro.String
	}
	return &wf, nil
}

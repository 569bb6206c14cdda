package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/untoldecay/aqua/internal/storage"
	"github.com/untoldecay/aqua/internal/types"
)

const taskColumns = `id, title, description, status, priority, created_by, claimed_by,
	claim_term, created_at, updated_at, claimed_at, completed_at, result, error,
	retry_count, max_retries, tags, context, version, depends_on`

func scanTask(row rowScanner) (*types.Task, error) {
	var (
		task                   types.Task
		description            sql.NullString
		status                 string
		createdBy, claimedBy   sql.NullString
		claimTerm              sql.NullInt64
		createdRaw, updatedRaw string
		claimedAt, completedAt sql.NullString
		result, errMsg         sql.NullString
		tags, taskContext      sql.NullString
		dependsOn              sql.NullString
	)
	err := row.Scan(&task.ID, &task.Title, &description, &status, &task.Priority,
		&createdBy, &claimedBy, &claimTerm, &createdRaw, &updatedRaw,
		&claimedAt, &completedAt, &result, &errMsg,
		&task.RetryCount, &task.MaxRetries, &tags, &taskContext,
		&task.Version, &dependsOn)
	if err != nil {
		return nil, err
	}

	task.Description = stringOrEmpty(description)
	if task.Status, err = types.ParseTaskStatus(status); err != nil {
		return nil, err
	}
	task.CreatedBy = stringOrEmpty(createdBy)
	task.ClaimedBy = stringOrEmpty(claimedBy)
	if claimTerm.Valid {
		t := claimTerm.Int64
		task.ClaimTerm = &t
	}
	if task.CreatedAt, err = decodeTime(createdRaw); err != nil {
		return nil, err
	}
	if task.UpdatedAt, err = decodeTime(updatedRaw); err != nil {
		return nil, err
	}
	if task.ClaimedAt, err = decodeTimePtr(claimedAt); err != nil {
		return nil, err
	}
	if task.CompletedAt, err = decodeTimePtr(completedAt); err != nil {
		return nil, err
	}
	task.Result = stringOrEmpty(result)
	task.Error = stringOrEmpty(errMsg)
	if task.Tags, err = decodeStrings(tags); err != nil {
		return nil, err
	}
	task.Context = stringOrEmpty(taskContext)
	if task.DependsOn, err = decodeStrings(dependsOn); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask inserts a new work item. Priority defaults to
// types.DefaultPriority when zero and is validated against the bounds.
func (s *Store) CreateTask(ctx context.Context, task *types.Task) error {
	if task.Priority == 0 {
		task.Priority = types.DefaultPriority
	}
	if task.Priority < types.MinPriority || task.Priority > types.MaxPriority {
		return fmt.Errorf("priority %d out of range [%d, %d]",
			task.Priority, types.MinPriority, types.MaxPriority)
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = types.DefaultMaxRetries
	}
	if task.Status == "" {
		task.Status = types.TaskPending
	}
	if task.Version == 0 {
		task.Version = 1
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, created_by,
			created_at, updated_at, retry_count, max_retries, tags, context,
			version, depends_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, nullable(task.Description), string(task.Status),
		task.Priority, nullable(task.CreatedBy), encodeTime(task.CreatedAt),
		encodeTime(task.UpdatedAt), task.RetryCount, task.MaxRetries,
		encodeStrings(task.Tags), nullable(task.Context), task.Version,
		encodeStrings(task.DependsOn))
	if err != nil {
		return fmt.Errorf("failed to create task: %w", mapSQLiteErr(err))
	}
	return nil
}

func getTask(ctx context.Context, q dbtx, id string) (*types.Task, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", mapSQLiteErr(err))
	}
	return task, nil
}

// GetTask returns the task with the given id.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return getTask(ctx, s.db, id)
}

// ListTasks returns tasks matching the filter, most urgent first
// (priority descending, then oldest first).
func (s *Store) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ClaimedBy != "" {
		query += ` AND claimed_by = ?`
		args = append(args, filter.ClaimedBy)
	}
	if filter.Tag != "" {
		// Tags are a JSON list; match the quoted element.
		query += ` AND tags LIKE ?`
		args = append(args, `%"`+filter.Tag+`"%`)
	}
	query += ` ORDER BY priority DESC, created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// listPendingOrdered returns all pending tasks in claim order.
func listPendingOrdered(ctx context.Context, q dbtx) ([]*types.Task, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ?
		 ORDER BY priority DESC, created_at ASC, rowid ASC`, string(types.TaskPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending tasks: %w", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// dependenciesMet reports whether every prerequisite of the task is
// done. Unknown dependency ids count as unmet.
func dependenciesMet(ctx context.Context, q dbtx, task *types.Task) (bool, error) {
	for _, depID := range task.DependsOn {
		var status sql.NullString
		err := q.QueryRowContext(ctx,
			`SELECT status FROM tasks WHERE id = ?`, depID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to check dependency %s: %w", depID, mapSQLiteErr(err))
		}
		if types.TaskStatus(status.String) != types.TaskDone {
			return false, nil
		}
	}
	return true, nil
}

func nextPendingTask(ctx context.Context, q dbtx, role string) (*types.Task, bool, error) {
	pending, err := listPendingOrdered(ctx, q)
	if err != nil {
		return nil, false, err
	}

	// First pass prefers tasks tagged with the agent's role; the second
	// pass takes any claimable task so a role never starves the queue.
	if role != "" {
		for _, task := range pending {
			if !hasTag(task, role) {
				continue
			}
			ok, err := dependenciesMet(ctx, q, task)
			if err != nil {
				return nil, false, err
			}
			if ok {
				return task, true, nil
			}
		}
	}
	for _, task := range pending {
		ok, err := dependenciesMet(ctx, q, task)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return task, false, nil
		}
	}
	return nil, false, nil
}

func hasTag(task *types.Task, tag string) bool {
	for _, t := range task.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NextPendingTask returns the highest-priority claimable pending task,
// or nil when the queue is drained. A task with unmet dependencies is
// skipped, not returned.
func (s *Store) NextPendingTask(ctx context.Context) (*types.Task, error) {
	task, _, err := nextPendingTask(ctx, s.db, "")
	return task, err
}

// NextPendingTaskForRole is NextPendingTask with role-tag preference.
// The bool reports whether the returned task actually carries the role
// tag or is a fallback pick.
func (s *Store) NextPendingTaskForRole(ctx context.Context, role string) (*types.Task, bool, error) {
	return nextPendingTask(ctx, s.db, role)
}

// BlockingDependencies returns the prerequisite tasks that are not yet
// done, in declaration order.
func (s *Store) BlockingDependencies(ctx context.Context, task *types.Task) ([]*types.Task, error) {
	var blocking []*types.Task
	for _, depID := range task.DependsOn {
		dep, err := getTask(ctx, s.db, depID)
		if errors.Is(err, storage.ErrNotFound) {
			// A dangling dependency id blocks forever; surface it as a
			// placeholder so callers can show what is missing.
			blocking = append(blocking, &types.Task{ID: depID, Status: types.TaskPending})
			continue
		}
		if err != nil {
			return nil, err
		}
		if dep.Status != types.TaskDone {
			blocking = append(blocking, dep)
		}
	}
	return blocking, nil
}

// claimTask performs the atomic pending-to-claimed transition. The
// WHERE clause on status makes the update a compare-and-swap: exactly
// one concurrent claimer observes one affected row.
func claimTask(ctx context.Context, q dbtx, taskID, agentID string, term int64) error {
	task, err := getTask(ctx, q, taskID)
	if err != nil {
		return err
	}
	ok, err := dependenciesMet(ctx, q, task)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, storage.ErrDependencyUnmet)
	}

	now := encodeTime(time.Now().UTC())
	res, err := q.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, claimed_by = ?, claim_term = ?, claimed_at = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND status = ?`,
		string(types.TaskClaimed), agentID, term, now, now,
		taskID, string(types.TaskPending))
	if err != nil {
		return fmt.Errorf("failed to claim task: %w", mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s is not pending: %w", taskID, storage.ErrClaimFailed)
	}
	return nil
}

// ClaimTask atomically transitions a pending task to claimed by the
// agent, recording the leader term in effect for the audit trail.
func (s *Store) ClaimTask(ctx context.Context, taskID, agentID string, term int64) error {
	return claimTask(ctx, s.db, taskID, agentID, term)
}

func completeTask(ctx context.Context, q dbtx, taskID, agentID, result string) error {
	now := encodeTime(time.Now().UTC())
	res, err := q.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, result = ?, completed_at = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND status = ? AND claimed_by = ?`,
		string(types.TaskDone), nullable(result), now, now,
		taskID, string(types.TaskClaimed), agentID)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s is not claimed by %s: %w", taskID, agentID, storage.ErrClaimFailed)
	}
	return nil
}

// CompleteTask transitions a claimed task to done. Only the claiming
// agent can complete it.
func (s *Store) CompleteTask(ctx context.Context, taskID, agentID, result string) error {
	return completeTask(ctx, s.db, taskID, agentID, result)
}

func failTask(ctx context.Context, q dbtx, taskID, agentID, reason string) error {
	now := encodeTime(time.Now().UTC())
	res, err := q.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, error = ?, completed_at = ?,
			retry_count = retry_count + 1, updated_at = ?,
			version = version + 1
		WHERE id = ? AND status = ? AND claimed_by = ?`,
		string(types.TaskFailed), nullable(reason), now, now,
		taskID, string(types.TaskClaimed), agentID)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s is not claimed by %s: %w", taskID, agentID, storage.ErrClaimFailed)
	}
	return nil
}

// FailTask transitions a claimed task to failed with the given reason.
// Failed is terminal: recovery does not requeue it.
func (s *Store) FailTask(ctx context.Context, taskID, agentID, reason string) error {
	return failTask(ctx, s.db, taskID, agentID, reason)
}

// abandonTask releases a claimed task whose owner is gone. The claim
// fields are cleared and the retry counter advances; RequeueAbandoned
// decides whether it goes back to pending.
func abandonTask(ctx context.Context, q dbtx, taskID, reason string) error {
	now := encodeTime(time.Now().UTC())
	res, err := q.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, error = ?, claimed_by = NULL, claim_term = NULL,
			claimed_at = NULL, retry_count = retry_count + 1,
			updated_at = ?, version = version + 1
		WHERE id = ? AND status = ?`,
		string(types.TaskAbandoned), nullable(reason), now,
		taskID, string(types.TaskClaimed))
	if err != nil {
		return fmt.Errorf("failed to abandon task: %w", mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s is not claimed: %w", taskID, storage.ErrClaimFailed)
	}
	return nil
}

// AbandonTask releases a claimed task without crediting or blaming any
// agent. Used by recovery when the claimer died.
func (s *Store) AbandonTask(ctx context.Context, taskID, reason string) error {
	return abandonTask(ctx, s.db, taskID, reason)
}

// RequeueAbandoned returns abandoned tasks under their retry cap to
// pending. Tasks at or over the cap stay abandoned for human attention.
func (s *Store) RequeueAbandoned(ctx context.Context) (int, error) {
	now := encodeTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, error = NULL, updated_at = ?, version = version + 1
		WHERE status = ? AND retry_count < max_retries`,
		string(types.TaskPending), now, string(types.TaskAbandoned))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue abandoned tasks: %w", mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}

// UpdateTaskProgress records the latest progress note on the task
// context, replacing the previous one.
func (s *Store) UpdateTaskProgress(ctx context.Context, taskID, progress string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET context = ?, updated_at = ?, version = version + 1
		WHERE id = ?`,
		nullable(progress), encodeTime(time.Now().UTC()), taskID)
	if err != nil {
		return fmt.Errorf("failed to update task progress: %w", mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
	}
	return nil
}

// TaskCounts tallies the queue by status.
func (s *Store) TaskCounts(ctx context.Context) (types.TaskCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(types.TaskCounts)
	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		status, err := types.ParseTaskStatus(raw)
		if err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

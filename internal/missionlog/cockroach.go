package missionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// CockroachConfig holds connection pool tuning, mirroring
// internal/jobs.CockroachConfig.
type CockroachConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultCockroachConfig returns sensible pool defaults.
func DefaultCockroachConfig() *CockroachConfig {
	return &CockroachConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// CockroachStore persists mission logs in a `mission_logs` table keyed by
// (user_id, project), for deployments that centralize state across
// replicas of the Core rather than relying on local disk.
type CockroachStore struct {
	db     *sql.DB
	notify NotifyFunc
}

// NewCockroachStoreFromDSN opens a pooled connection and verifies it with a
// ping before returning.
func NewCockroachStoreFromDSN(dsn string, config *CockroachConfig, notify NotifyFunc) (*CockroachStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("missionlog: dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("missionlog: open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("missionlog: ping database: %w", err)
	}

	return &CockroachStore{db: db, notify: notify}, nil
}

// Close releases pooled connections.
func (s *CockroachStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *CockroachStore) readLocked(ctx context.Context, userID, project string) (*models.MissionLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT initial_goal, tasks FROM mission_logs WHERE user_id = $1 AND project = $2
	`, userID, project)

	var goal string
	var rawTasks []byte
	if err := row.Scan(&goal, &rawTasks); err != nil {
		if err == sql.ErrNoRows {
			return &models.MissionLog{NextID: 1}, nil
		}
		return nil, fmt.Errorf("missionlog: read: %w", err)
	}

	var tasks []*models.Task
	if len(rawTasks) > 0 {
		if err := json.Unmarshal(rawTasks, &tasks); err != nil {
			return nil, fmt.Errorf("missionlog: unmarshal tasks: %w", err)
		}
	}

	var maxID uint32
	for _, t := range tasks {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	nextID := uint32(1)
	if len(tasks) > 0 {
		nextID = maxID + 1
	}

	return &models.MissionLog{InitialGoal: goal, Tasks: tasks, NextID: nextID}, nil
}

func (s *CockroachStore) writeLocked(ctx context.Context, userID, project string, log *models.MissionLog) error {
	rawTasks, err := json.Marshal(log.Tasks)
	if err != nil {
		return fmt.Errorf("missionlog: marshal tasks: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mission_logs (user_id, project, initial_goal, tasks, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, project)
		DO UPDATE SET initial_goal = $3, tasks = $4, updated_at = $5
	`, userID, project, log.InitialGoal, rawTasks, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("missionlog: write: %w", err)
	}

	if s.notify != nil {
		s.notify(ctx, userID, log)
	}
	return nil
}

// Load implements Store.
func (s *CockroachStore) Load(ctx context.Context, userID, project string) (*models.MissionLog, error) {
	return s.readLocked(ctx, userID, project)
}

// SetInitialPlan implements Store.
func (s *CockroachStore) SetInitialPlan(ctx context.Context, userID, project string, steps []string, userGoal string) (*models.MissionLog, error) {
	log := &models.MissionLog{InitialGoal: userGoal, NextID: 1}
	seedIndexTask(log)
	for _, step := range steps {
		log.Tasks = append(log.Tasks, &models.Task{ID: log.NextID, Description: step})
		log.NextID++
	}

	if err := s.writeLocked(ctx, userID, project, log); err != nil {
		return nil, err
	}
	return log, nil
}

// GetTasks implements Store.
func (s *CockroachStore) GetTasks(ctx context.Context, userID, project string, done *bool) ([]*models.Task, error) {
	log, err := s.readLocked(ctx, userID, project)
	if err != nil {
		return nil, err
	}
	if done == nil {
		return log.Snapshot(), nil
	}
	var out []*models.Task
	for _, t := range log.Snapshot() {
		if t.Done == *done {
			out = append(out, t)
		}
	}
	return out, nil
}

// MarkDone implements Store.
func (s *CockroachStore) MarkDone(ctx context.Context, userID, project string, taskID uint32) (bool, error) {
	log, err := s.readLocked(ctx, userID, project)
	if err != nil {
		return false, err
	}
	for _, t := range log.Tasks {
		if t.ID == taskID {
			if t.Done {
				return true, nil
			}
			t.Done = true
			t.LastError = ""
			return true, s.writeLocked(ctx, userID, project, log)
		}
	}
	return false, nil
}

// RecordFailure implements Store.
func (s *CockroachStore) RecordFailure(ctx context.Context, userID, project string, taskID uint32, lastError string) error {
	log, err := s.readLocked(ctx, userID, project)
	if err != nil {
		return err
	}
	for _, t := range log.Tasks {
		if t.ID == taskID {
			t.LastError = lastError
			return s.writeLocked(ctx, userID, project, log)
		}
	}
	return nil
}

// ReplaceTasksFrom implements Store.
func (s *CockroachStore) ReplaceTasksFrom(ctx context.Context, userID, project string, startTaskID uint32, newSteps []string) (*models.MissionLog, error) {
	log, err := s.readLocked(ctx, userID, project)
	if err != nil {
		return nil, err
	}

	startIdx := -1
	for i, t := range log.Tasks {
		if t.ID == startTaskID {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return log, nil
	}

	log.Tasks = log.Tasks[:startIdx]
	for _, step := range newSteps {
		log.Tasks = append(log.Tasks, &models.Task{ID: log.NextID, Description: step})
		log.NextID++
	}

	if err := s.writeLocked(ctx, userID, project, log); err != nil {
		return nil, err
	}
	return log, nil
}

// InitialGoal implements Store.
func (s *CockroachStore) InitialGoal(ctx context.Context, userID, project string) (string, error) {
	log, err := s.readLocked(ctx, userID, project)
	if err != nil {
		return "", err
	}
	return log.InitialGoal, nil
}

// ClearAll implements Store.
func (s *CockroachStore) ClearAll(ctx context.Context, userID, project string) error {
	return s.writeLocked(ctx, userID, project, &models.MissionLog{NextID: 1})
}

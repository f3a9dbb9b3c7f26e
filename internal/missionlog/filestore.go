package missionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// missionLogFilename matches spec.md §6's persisted-state path exactly:
// one JSON document per (user, project) at {project_root}/mission_log.json.
const missionLogFilename = "mission_log.json"

// persistedShape is the exact on-disk JSON document named in spec.md §6:
// {initial_goal, tasks:[{id, description, done, tool_call?, last_error?}...]}.
type persistedShape struct {
	InitialGoal string         `json:"initial_goal"`
	Tasks       []*models.Task `json:"tasks"`
}

// FileStore is a write-through, one-JSON-file-per-project Mission Log
// store, grounded on MissionLogService._save_and_notify /
// load_log_for_active_project.
type FileStore struct {
	mu     sync.Mutex
	logs   map[string]*models.MissionLog
	roots  func(userID, project string) string
	notify NotifyFunc
}

// NewFileStore constructs a FileStore. projectRoot resolves (userID,
// project) to the on-disk project root directory the mission_log.json file
// lives under. notify, if non-nil, is invoked after every successful flush.
func NewFileStore(projectRoot func(userID, project string) string, notify NotifyFunc) *FileStore {
	return &FileStore{
		logs:   make(map[string]*models.MissionLog),
		roots:  projectRoot,
		notify: notify,
	}
}

func key(userID, project string) string { return userID + "\x00" + project }

func (s *FileStore) path(userID, project string) string {
	return filepath.Join(s.roots(userID, project), missionLogFilename)
}

// Load reconstructs the MissionLog from disk if not already resident,
// rebuilding NextID as max(id)+1 per spec.md §4.1. A missing or unparsable
// file yields an empty log rather than an error, matching the original's
// "Starting fresh" fallback.
func (s *FileStore) Load(ctx context.Context, userID, project string) (*models.MissionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(userID, project)
}

func (s *FileStore) loadLocked(userID, project string) (*models.MissionLog, error) {
	k := key(userID, project)
	if log, ok := s.logs[k]; ok {
		return log, nil
	}

	log := &models.MissionLog{NextID: 1}

	raw, err := os.ReadFile(s.path(userID, project))
	if err == nil {
		var saved persistedShape
		if jsonErr := json.Unmarshal(raw, &saved); jsonErr == nil {
			log.InitialGoal = saved.InitialGoal
			log.Tasks = saved.Tasks
			var maxID uint32
			for _, t := range log.Tasks {
				if t.ID > maxID {
					maxID = t.ID
				}
			}
			if len(log.Tasks) > 0 {
				log.NextID = maxID + 1
			}
		}
	}

	s.logs[k] = log
	return log, nil
}

func (s *FileStore) flushLocked(ctx context.Context, userID, project string, log *models.MissionLog) error {
	root := s.roots(userID, project)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("missionlog: create project root: %w", err)
	}

	data := persistedShape{InitialGoal: log.InitialGoal, Tasks: log.Tasks}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("missionlog: marshal: %w", err)
	}
	if err := os.WriteFile(s.path(userID, project), raw, 0o644); err != nil {
		return fmt.Errorf("missionlog: write: %w", err)
	}

	if s.notify != nil {
		s.notify(ctx, userID, log)
	}
	return nil
}

// SetInitialPlan implements Store.
func (s *FileStore) SetInitialPlan(ctx context.Context, userID, project string, steps []string, userGoal string) (*models.MissionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := &models.MissionLog{InitialGoal: userGoal, NextID: 1}
	seedIndexTask(log)
	for _, step := range steps {
		log.Tasks = append(log.Tasks, &models.Task{ID: log.NextID, Description: step})
		log.NextID++
	}

	s.logs[key(userID, project)] = log
	if err := s.flushLocked(ctx, userID, project, log); err != nil {
		return nil, err
	}
	return log, nil
}

// GetTasks implements Store.
func (s *FileStore) GetTasks(ctx context.Context, userID, project string, done *bool) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.loadLocked(userID, project)
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
func (s *FileStore) MarkDone(ctx context.Context, userID, project string, taskID uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.loadLocked(userID, project)
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
			return true, s.flushLocked(ctx, userID, project, log)
		}
	}
	return false, nil
}

// RecordFailure implements Store.
func (s *FileStore) RecordFailure(ctx context.Context, userID, project string, taskID uint32, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.loadLocked(userID, project)
	if err != nil {
		return err
	}

	for _, t := range log.Tasks {
		if t.ID == taskID {
			t.LastError = lastError
			return s.flushLocked(ctx, userID, project, log)
		}
	}
	return nil
}

// ReplaceTasksFrom implements Store.
func (s *FileStore) ReplaceTasksFrom(ctx context.Context, userID, project string, startTaskID uint32, newSteps []string) (*models.MissionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.loadLocked(userID, project)
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

	if err := s.flushLocked(ctx, userID, project, log); err != nil {
		return nil, err
	}
	return log, nil
}

// InitialGoal implements Store.
func (s *FileStore) InitialGoal(ctx context.Context, userID, project string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.loadLocked(userID, project)
	if err != nil {
		return "", err
	}
	return log.InitialGoal, nil
}

// ClearAll implements Store.
func (s *FileStore) ClearAll(ctx context.Context, userID, project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := &models.MissionLog{NextID: 1}
	s.logs[key(userID, project)] = log
	return s.flushLocked(ctx, userID, project, log)
}

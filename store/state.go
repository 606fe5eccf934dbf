package store

import (
	"context"

	"go.uber.org/zap"
)

// State wraps the durable file store with an optional redis mirror. Every
// write goes to the file first; the mirror is best-effort and its errors
// are logged, never propagated.
type State struct {
	file   *FileStore
	mirror *RedisMirror
	logger *zap.Logger
}

// NewState builds a State backed by file, optionally mirroring to redis
// when mirror is non-nil.
func NewState(file *FileStore, mirror *RedisMirror, logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{file: file, mirror: mirror, logger: logger}
}

// Save persists the snapshot to file, then best-effort mirrors it to redis.
func (s *State) Save(ctx context.Context, snap Snapshot) error {
	if err := s.file.Save(snap); err != nil {
		return err
	}
	if s.mirror != nil {
		if err := s.mirror.Save(ctx, snap); err != nil {
			s.logger.Warn("redis mirror write failed", zap.Error(err))
		}
	}
	return nil
}

// Load reads the file-based snapshot. The redis mirror is read-path only
// for an operator inspecting state mid-incident; normal startup always
// trusts the file.
func (s *State) Load() (Snapshot, error) {
	return s.file.Load()
}

// Close releases the mirror connection, if any.
func (s *State) Close() error {
	if s.mirror != nil {
		return s.mirror.Close()
	}
	return nil
}

// File: internal/submission/file.go
package submission

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ArtifactSuffix is appended to the session id to name its artifact.
const ArtifactSuffix = "_submission.json"

// FileChannel pairs an in-memory channel with one JSON artifact per session
// under a cache directory. Writes to one session are serialized and update
// memory first, then disk through WriteFileAtomic, so both halves end on the
// same payload. Reads prefer memory unless another process has since
// replaced the artifact. The disk half lets a reader in another process
// observe a submission.
type FileChannel struct {
	mem *MemoryChannel
	dir string
	log *zap.Logger

	mu       sync.Mutex
	sessions map[string]*fileSession
}

// fileSession orders writes for one id and records when this process last
// wrote its artifact.
type fileSession struct {
	mu     sync.Mutex
	synced time.Time
}

// NewFileChannel creates the cache directory if needed.
func NewFileChannel(dir string, logger *zap.Logger) (*FileChannel, error) {
	if dir == "" {
		return nil, errors.New("file channel: cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file channel: create cache directory: %w", err)
	}
	return &FileChannel{
		mem:      NewMemoryChannel(),
		dir:      dir,
		log:      logger.Named("file_channel"),
		sessions: make(map[string]*fileSession),
	}, nil
}

func (f *FileChannel) session(sessionID string) *fileSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		s = &fileSession{}
		f.sessions[sessionID] = s
	}
	return s
}

// Dir returns the cache directory.
func (f *FileChannel) Dir() string { return f.dir }

// Memory exposes the in-memory half, which doubles as a push notifier.
func (f *FileChannel) Memory() *MemoryChannel { return f.mem }

// ArtifactPath returns the artifact location for sessionID.
func (f *FileChannel) ArtifactPath(sessionID string) string {
	return filepath.Join(f.dir, sessionID+ArtifactSuffix)
}

// SessionFromArtifact maps an artifact file name back to its session id.
func SessionFromArtifact(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, ArtifactSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(base, ArtifactSuffix)
	return id, ValidateSessionID(id) == nil
}

// Write returns a *DurabilityError when the artifact could not be persisted;
// the payload is still visible to readers in this process.
func (f *FileChannel) Write(ctx context.Context, sessionID string, payload map[string]any) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	sess := f.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := f.mem.Write(ctx, sessionID, payload); err != nil {
		return err
	}

	path := f.ArtifactPath(sessionID)
	err = WriteFileAtomic(path, data, 0o644)
	sess.synced = time.Now()
	if err == nil {
		if fi, statErr := os.Stat(path); statErr == nil {
			sess.synced = fi.ModTime()
		}
	}
	if err != nil {
		f.log.Error("Failed to persist submission artifact",
			zap.String("session_id", sessionID),
			zap.String("path", path),
			zap.Error(err))
		return &DurabilityError{SessionID: sessionID, Err: err}
	}
	f.log.Debug("Persisted submission artifact", zap.String("session_id", sessionID), zap.String("path", path))
	return nil
}

// Read returns the in-memory payload unless the artifact was replaced after
// this process last wrote it, which means another process sharing the cache
// directory submitted since. Filesystems with coarse mtimes can hide a
// replacement that lands within the same tick.
func (f *FileChannel) Read(ctx context.Context, sessionID string) (map[string]any, bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, false, err
	}
	path := f.ArtifactPath(sessionID)

	sess := f.session(sessionID)
	sess.mu.Lock()
	mem, inMemory, _ := f.mem.Read(ctx, sessionID)
	synced := sess.synced
	sess.mu.Unlock()

	if inMemory {
		fi, err := os.Stat(path)
		if err != nil || !fi.ModTime().After(synced) {
			return mem, true, nil
		}
		if payload, ok, err := readArtifact(path); err == nil && ok {
			return payload, true, nil
		}
		return mem, true, nil
	}
	return readArtifact(path)
}

// readArtifact decodes the artifact at path. A missing, partial or empty body
// is "not yet", not a failure.
func readArtifact(path string) (map[string]any, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("file channel: read artifact: %w", err)
	}
	payload, err := decodePayload(data)
	if err != nil {
		return nil, false, nil
	}
	return payload, true, nil
}

package toolexecutor

import (
	"fmt"
	"sync"

	"github.com/turnengine/core/pkg/turn"
)

// MemoryFS is a per-session in-memory turn.VirtualFS: tool executions
// that write files see their writes within the same session, and
// nowhere else — there is no real filesystem underneath, so a worker
// crash loses uncommitted writes the way any other turn side effect does
// until the owning tool re-executes.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryFS builds an empty MemoryFS.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{files: make(map[string][]byte)}
}

// ReadFile returns a copy of the named file's contents, or an error if it
// does not exist.
func (fs *MemoryFS) ReadFile(path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	data, ok := fs.files[path]
	if !ok {
		return nil, fmt.Errorf("toolexecutor: file %q not found", path)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFile stores a copy of data under path, overwriting any prior
// contents.
func (fs *MemoryFS) WriteFile(path string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	fs.files[path] = stored
	return nil
}

// SessionFSStore hands out one MemoryFS per session, lazily created on
// first access and reused for every later tool call in that session so
// writes from one tool invocation are visible to the next.
type SessionFSStore struct {
	mu  sync.Mutex
	fss map[string]*MemoryFS
}

// NewSessionFSStore builds an empty SessionFSStore.
func NewSessionFSStore() *SessionFSStore {
	return &SessionFSStore{fss: make(map[string]*MemoryFS)}
}

// FS returns the MemoryFS for sessionID, creating it if this is the
// session's first tool call. It implements turn.FSProvider.
func (s *SessionFSStore) FS(sessionID string) turn.VirtualFS {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs, ok := s.fss[sessionID]
	if !ok {
		fs = NewMemoryFS()
		s.fss[sessionID] = fs
	}
	return fs
}

package jpip

import (
	"fmt"
	"sync"

	"github.com/codeninja55/go-jpip/jpeg2000"
)

// Session binds one client channel, identified by a cid the client reuses
// across requests, to an open image and the cache model tracking what that
// client already holds. A Session moves through the same open, active,
// release lifecycle as a DICOM association: Open acquires the image and
// starts the channel, SetRequest/GenerateChunk drive it while active, Close
// releases the image and ends it.
type Session struct {
	mu sync.Mutex

	cid    string
	target string

	cache *ImageCache
	index *jpeg2000.ImageIndex

	cacheModel *CacheModel
	server     *DataBinServer

	closed bool
}

// NewSession creates a channel bound to cache, identified by cid.
func NewSession(cache *ImageCache, cid string) *Session {
	return &Session{
		cid:        cid,
		cache:      cache,
		cacheModel: NewCacheModel(),
	}
}

// Cid returns the channel's client identifier.
func (s *Session) Cid() string {
	return s.cid
}

// Open acquires the image index for target and starts the channel against
// it. Calling Open again for the same session replaces the bound image,
// releasing the previous one.
func (s *Session) Open(target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("jpip: session %s is closed", s.cid)
	}

	idx, err := s.cache.Acquire(target)
	if err != nil {
		return err
	}

	if s.index != nil {
		s.cache.Release(s.target, s.index)
	}

	s.target = target
	s.index = idx
	s.cacheModel.Clear()
	s.server = NewDataBinServer(s.index, s.cacheModel)
	return nil
}

// SetRequest applies a parsed request to the channel's data-bin server.
// The channel must already be open.
func (s *Session) SetRequest(req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return fmt.Errorf("jpip: session %s has no open target", s.cid)
	}
	if req.Mask&MaskTarget != 0 && req.Target != s.target {
		return fmt.Errorf("jpip: session %s is bound to %q, got target %q", s.cid, s.target, req.Target)
	}
	return s.server.SetRequest(req)
}

// GenerateChunk fills buf with the next piece of the channel's in-progress
// response, per DataBinServer.GenerateChunk.
func (s *Session) GenerateChunk(buf []byte, maxLen int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return 0, false, fmt.Errorf("jpip: session %s has no open target", s.cid)
	}
	return s.server.GenerateChunk(buf, maxLen)
}

// CacheModel returns the channel's cache model, for inspection (e.g. a CLI
// summarizing what a session has sent so far). Callers must not mutate it
// concurrently with GenerateChunk.
func (s *Session) CacheModel() *CacheModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheModel
}

// Close releases the channel's image reference. A closed session rejects
// further Open calls.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		s.cache.Release(s.target, s.index)
		s.index = nil
	}
	s.server = nil
	s.closed = true
}

// SessionManager tracks one Session per client channel identifier (cnew
// assigns a fresh cid, cid resumes an existing one, cclose tears one down),
// grounded on the same RWMutex-guarded map idiom as ImageCache.
type SessionManager struct {
	mu       sync.RWMutex
	cache    *ImageCache
	sessions map[string]*Session
	nextCid  int
}

// NewSessionManager creates a manager that opens images through cache.
func NewSessionManager(cache *ImageCache) *SessionManager {
	return &SessionManager{cache: cache, sessions: make(map[string]*Session)}
}

// NewChannel allocates a fresh cid and its Session, per a cnew request.
func (m *SessionManager) NewChannel() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextCid++
	cid := fmt.Sprintf("jpip-%d", m.nextCid)
	s := NewSession(m.cache, cid)
	m.sessions[cid] = s
	return s
}

// Channel returns the session for an existing cid, or false if unknown.
func (m *SessionManager) Channel(cid string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[cid]
	return s, ok
}

// Close tears down and forgets the session for cid, per a cclose request.
func (m *SessionManager) Close(cid string) {
	m.mu.Lock()
	s, ok := m.sessions[cid]
	delete(m.sessions, cid)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

package api

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// downloadStore keeps rendered result files in memory for single-use
// download. Tokens are consumed on first access.
type downloadStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newDownloadStore() *downloadStore {
	return &downloadStore{files: make(map[string][]byte)}
}

// put stores the payload and returns its one-time token.
func (s *downloadStore) put(data []byte) string {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	s.mu.Lock()
	s.files[token] = data
	s.mu.Unlock()
	return token
}

// pop removes and returns the payload for a token.
func (s *downloadStore) pop(token string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[token]
	if ok {
		delete(s.files, token)
	}
	return data, ok
}

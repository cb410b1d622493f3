package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StoredTokens is the client-side record of a signed-in session.
type StoredTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
}

// TokenStorage persists tokens between process restarts. Load returns nil, nil
// when nothing is stored.
type TokenStorage interface {
	Load(ctx context.Context) (*StoredTokens, error)
	Save(ctx context.Context, t StoredTokens) error
	Clear(ctx context.Context) error
}

// MemoryStorage keeps tokens for the life of the process.
type MemoryStorage struct {
	mu     sync.Mutex
	tokens *StoredTokens
}

// NewMemoryStorage returns an empty [MemoryStorage].
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Load(context.Context) (*StoredTokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return nil, nil
	}
	t := *s.tokens
	return &t, nil
}

func (s *MemoryStorage) Save(_ context.Context, t StoredTokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = &t
	return nil
}

func (s *MemoryStorage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
	return nil
}

// FileStorage keeps tokens in a JSON file readable only by the owner.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage stores tokens at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (s *FileStorage) Load(context.Context) (*StoredTokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var t StoredTokens
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return &t, nil
}

// Save writes through a temporary file so a crash never leaves a torn record.
func (s *FileStorage) Save(_ context.Context, t StoredTokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStorage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

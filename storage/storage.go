// Package storage is the durable local key/value store for credentials: the
// session auth token and a cached user profile, kept under fixed keys and
// cleared in full on logout or session invalidation. The session manager is
// the sole writer; everything else reads through TokenReader so the token is
// always read fresh (supports rotation mid-process).
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hearthchat/hearth-client/crypto"
)

const credentialsFile = "credentials.json"

// Profile is the cached identity of the logged-in user.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Nickname      string `json:"nickname"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// TokenReader is the read-only view handed to the transport layer.
type TokenReader interface {
	// Token returns the current auth token, or "" when logged out.
	Token() string
}

// Store holds the token and cached profile.
type Store interface {
	TokenReader
	SetToken(token string) error
	User() (*Profile, bool)
	SetUser(p *Profile) error
	// Clear removes both token and profile.
	Clear() error
}

// credentials is the on-disk document. Token holds base64 ciphertext when an
// encryptor is configured, the raw token otherwise.
type credentials struct {
	Token string   `json:"token,omitempty"`
	User  *Profile `json:"user,omitempty"`
}

// FileStore persists credentials as a single JSON document in the data dir.
// Writes are atomic (temp file + rename).
type FileStore struct {
	path string
	enc  crypto.Encryptor

	mu    sync.RWMutex
	token string
	user  *Profile
}

// NewFileStore opens (or creates) the credential store under dataDir.
// enc may be nil, in which case the token is stored in plaintext.
func NewFileStore(dataDir string, enc crypto.Encryptor) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	s := &FileStore{path: filepath.Join(dataDir, credentialsFile), enc: enc}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	var c credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return fmt.Errorf("parse credentials: %w", err)
	}
	token := c.Token
	if s.enc != nil {
		token, err = crypto.DecryptString(s.enc, c.Token)
		if err != nil {
			// A stale or foreign-key ciphertext means the stored session is
			// unusable; treat as logged out rather than failing startup.
			return s.Clear()
		}
	}
	s.token = token
	s.user = c.User
	return nil
}

func (s *FileStore) persist() error {
	c := credentials{Token: s.token, User: s.user}
	if s.enc != nil {
		ct, err := crypto.EncryptString(s.enc, s.token)
		if err != nil {
			return fmt.Errorf("encrypt token: %w", err)
		}
		c.Token = ct
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

func (s *FileStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *FileStore) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return s.persist()
}

func (s *FileStore) User() (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	cp := *s.user
	return &cp, true
}

func (s *FileStore) SetUser(p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p != nil {
		cp := *p
		s.user = &cp
	} else {
		s.user = nil
	}
	return s.persist()
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	return s.persist()
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu    sync.RWMutex
	token string
	user  *Profile
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemStore) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemStore) User() (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	cp := *s.user
	return &cp, true
}

func (s *MemStore) SetUser(p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = p
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	return nil
}

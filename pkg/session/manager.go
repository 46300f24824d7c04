// Package session persists conversation history as one JSONL file per
// session. Each line is a timestamped message; damaged lines are skipped on
// load so a torn write never takes a session down.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/halim/evo/pkg/dispatch"
)

// Entry is the persisted form of one conversation turn.
type Entry struct {
	Timestamp time.Time        `json:"timestamp"`
	Message   dispatch.Message `json:"message"`
}

// Manager owns the sessions directory. Appends to the same session serialize
// through a per-session lock; different sessions do not contend.
type Manager struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// New creates a session manager rooted at dir.
func New(dir string) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("sessions directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("Session manager initialized")
	return &Manager{dir: dir, writeLocks: make(map[string]*sync.Mutex)}, nil
}

// ValidateKey checks that a session key is safe to use as a file name.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(key, "..") || strings.ContainsAny(key, "/\\\x00") {
		return fmt.Errorf("session key contains illegal characters")
	}
	return nil
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.dir, key+".jsonl")
}

func (m *Manager) lockFor(key string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	if lock, ok := m.writeLocks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	m.writeLocks[key] = lock
	return lock
}

// Append writes one message to the session, creating it on first use.
func (m *Manager) Append(key string, msg dispatch.Message) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if msg.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}

	lock := m.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(m.path(key), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(Entry{Timestamp: time.Now().UTC(), Message: msg})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync session file: %w", err)
	}

	log.Debug().Str("session_key", key).Str("role", msg.Role).Msg("Message appended")
	return nil
}

// Load returns the session's messages in order. When limit is positive, only
// the most recent limit messages are returned; a missing session loads empty.
func (m *Manager) Load(key string, limit int) ([]dispatch.Message, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	file, err := os.Open(m.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var messages []dispatch.Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			log.Warn().Str("session_key", key).Int("line", lineNum).Err(err).
				Msg("Skipping unparsable session line")
			continue
		}
		if entry.Message.Role == "" {
			continue
		}
		messages = append(messages, entry.Message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// Reset deletes the session's history. Resetting a session that does not
// exist is not an error.
func (m *Manager) Reset(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	lock := m.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(m.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	m.locksMu.Lock()
	delete(m.writeLocks, key)
	m.locksMu.Unlock()

	log.Info().Str("session_key", key).Msg("Session reset")
	return nil
}

// List returns all session keys in sorted order.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(entry.Name(), ".jsonl"))
	}
	sort.Strings(keys)
	return keys, nil
}

// Stat returns basic metadata about a session.
func (m *Manager) Stat(key string) (size int64, modified time.Time, count int, err error) {
	if err = ValidateKey(key); err != nil {
		return 0, time.Time{}, 0, err
	}

	info, err := os.Stat(m.path(key))
	if err != nil {
		return 0, time.Time{}, 0, fmt.Errorf("session does not exist: %s", key)
	}

	messages, err := m.Load(key, 0)
	if err != nil {
		return 0, time.Time{}, 0, err
	}
	return info.Size(), info.ModTime(), len(messages), nil
}

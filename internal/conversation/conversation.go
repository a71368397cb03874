// Package conversation persists chat history between ort invocations.
//
// Each conversation is one JSON file in the state directory, named by its
// id. A small "latest" pointer file holds the id of the most recent
// conversation so `--continue` can find it without scanning.
package conversation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grahamking/ort/pkg/openrouter"
)

// latestPointer is the file naming the most recent conversation id.
const latestPointer = "latest"

// Conversation is a stored exchange.
type Conversation struct {
	ID       string               `json:"id"`
	Model    string               `json:"model"`
	Started  time.Time            `json:"started"`
	Updated  time.Time            `json:"updated"`
	Messages []openrouter.Message `json:"messages"`
}

// Store reads and writes conversations under dir.
type Store struct {
	dir string
}

// NewStore creates the directory if needed and returns a store over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// New starts a fresh conversation.
func (s *Store) New(model string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:      uuid.NewString(),
		Model:   model,
		Started: now,
		Updated: now,
	}
}

// Latest loads the most recently saved conversation, or nil when none
// exists yet.
func (s *Store) Latest() (*Conversation, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, latestPointer))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return nil, nil
	}
	return s.Load(id)
}

// Load reads a conversation by id.
func (s *Store) Load(id string) (*Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid conversation id %q: %w", id, err)
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	conv := &Conversation{}
	if err := json.Unmarshal(data, conv); err != nil {
		return nil, fmt.Errorf("corrupt conversation %s: %w", id, err)
	}
	return conv, nil
}

// Save writes the conversation and updates the latest pointer. Writes go
// through a temp file and rename so a crash never leaves a torn file.
func (s *Store) Save(conv *Conversation) error {
	conv.Updated = time.Now()
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path(conv.ID), data, 0o600); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.dir, latestPointer), []byte(conv.ID+"\n"), 0o600)
}

// Append adds one message to the conversation; it does not save.
func (c *Conversation) Append(role, content string) {
	c.Messages = append(c.Messages, openrouter.Message{Role: role, Content: content})
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func writeAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}

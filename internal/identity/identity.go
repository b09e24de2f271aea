package identity

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/ssrc"
)

// Identity is the persisted per-deployment identity. ServerSSRC is
// assigned once from the server name and then fixed for the lifetime of
// the stored file, so the mixing server sees a stable identifier across
// restarts and renames.
type Identity struct {
	ServerName string `yaml:"server_name"`
	ServerSSRC uint32 `yaml:"server_ssrc"`
}

// Normalize fills in whatever the stored identity is missing: a blank
// name takes fallbackName (then "default" if that is blank too), and a
// zero SSRC is derived from the name via derive (then forced to 1 if
// the derivation itself returns zero). Normalizing an already-normalized
// identity changes nothing.
func (id *Identity) Normalize(fallbackName string, derive func(string) uint32) {
	id.ServerName = strings.TrimSpace(id.ServerName)
	if id.ServerName == "" {
		id.ServerName = strings.TrimSpace(fallbackName)
	}
	if id.ServerName == "" {
		id.ServerName = "default"
	}
	if id.ServerSSRC == 0 {
		id.ServerSSRC = derive(id.ServerName)
	}
	if id.ServerSSRC == 0 {
		id.ServerSSRC = 1
	}
}

// Store reads and writes the identity file. Fallback paths are tried in
// order when the primary path is unreadable; writes always go to the
// primary path.
type Store struct {
	path      string
	fallbacks []string
}

// NewStore returns a store over the given primary path and ordered
// fallback candidates.
func NewStore(path string, fallbacks []string) *Store {
	return &Store{path: path, fallbacks: fallbacks}
}

// Load returns the stored identity, or a zero identity if no candidate
// file is readable and well-formed. Load never fails: a corrupt or
// missing file simply means the caller starts from defaults, which
// Normalize turns into a usable identity.
func (s *Store) Load() *Identity {
	for _, path := range append([]string{s.path}, s.fallbacks...) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var id Identity
		if err := yaml.Unmarshal(data, &id); err != nil {
			continue
		}
		return &id
	}
	return &Identity{}
}

// Save persists the identity to the primary path.
func (s *Store) Save(id *Identity) error {
	data, err := yaml.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write identity file %s: %w", s.path, err)
	}
	return nil
}

// Refresh runs the full load, normalize, persist pass. The returned
// identity is always usable (non-blank name, non-zero SSRC) even when
// the persist step fails; the save error is returned so the caller can
// log it.
func (s *Store) Refresh(fallbackName string) (*Identity, error) {
	id := s.Load()
	id.Normalize(fallbackName, ssrc.ForServer)
	if err := s.Save(id); err != nil {
		return id, err
	}
	return id, nil
}

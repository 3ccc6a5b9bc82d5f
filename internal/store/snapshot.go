package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

// snapshotFile sits next to the templates so the snapshot travels with the
// repository checkout the templates live in.
const snapshotFile = ".iambic-snapshot.json"

// SnapshotStore persists the per-resource content hashes recorded by the
// last import. The plan engine compares live state against these hashes to
// detect out-of-band changes.
type SnapshotStore struct {
	path string
}

func NewSnapshotStore(root string) *SnapshotStore {
	return &SnapshotStore{path: filepath.Join(root, snapshotFile)}
}

type snapshotEntry struct {
	Account      string `json:"account"`
	TemplateType string `json:"template_type"`
	Identifier   string `json:"identifier"`
	Hash         string `json:"hash"`
}

// Load returns the stored snapshot, or an empty one when none has been
// written yet. A first run has nothing to conflict with.
func (s *SnapshotStore) Load() (domain.Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Snapshot{}, nil
		}
		return nil, errors.Wrap(err, errors.CodeRepositoryError,
			fmt.Sprintf("failed to read snapshot file '%s'", s.path))
	}
	var entries []snapshotEntry
	if err := jsoniter.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, errors.CodeRepositoryError,
			fmt.Sprintf("failed to parse snapshot file '%s'", s.path))
	}
	snapshot := make(domain.Snapshot, len(entries))
	for _, e := range entries {
		key := domain.ResourceKey{
			Account:    domain.AccountID(e.Account),
			Type:       domain.TemplateType(e.TemplateType),
			Identifier: e.Identifier,
		}
		snapshot[key] = e.Hash
	}
	return snapshot, nil
}

// Save writes the snapshot atomically, sorted for stable diffs.
func (s *SnapshotStore) Save(snapshot domain.Snapshot) error {
	entries := make([]snapshotEntry, 0, len(snapshot))
	for key, hash := range snapshot {
		entries = append(entries, snapshotEntry{
			Account:      string(key.Account),
			TemplateType: string(key.Type),
			Identifier:   key.Identifier,
			Hash:         hash,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Account != entries[j].Account {
			return entries[i].Account < entries[j].Account
		}
		if entries[i].TemplateType != entries[j].TemplateType {
			return entries[i].TemplateType < entries[j].TemplateType
		}
		return entries[i].Identifier < entries[j].Identifier
	})

	raw, err := jsoniter.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeRepositoryError, "failed to encode snapshot")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, errors.CodeRepositoryError,
			fmt.Sprintf("failed to write snapshot file '%s'", tmp))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, errors.CodeRepositoryError,
			fmt.Sprintf("failed to replace snapshot file '%s'", s.path))
	}
	return nil
}

package nordstats

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// FileRecordProvider reads the per-player stats files written by the game server to <dir>/<uuid>.json.
type FileRecordProvider struct {
	dir string
}

func NewFileRecordProvider(dir string) *FileRecordProvider {
	return &FileRecordProvider{dir: dir}
}

func (p *FileRecordProvider) FetchRawStats(ctx context.Context, playerID string) (RawStatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePlayerID(playerID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(p.dir, playerID+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return RawStatRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stats file: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var doc map[string]any
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode stats file %s: %w", playerID, err)
	}
	return FlattenVanillaStats(doc), nil
}

// ListPlayerIDs returns every player with a stats file, sorted.
func (p *FileRecordProvider) ListPlayerIDs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list stats dir: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		if validatePlayerID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// MergedRecordProvider combines several providers. For every counter the largest reported value wins,
// since counters only grow and a lagging source must not hide progress.
type MergedRecordProvider struct {
	providers []RecordProvider
}

func NewMergedRecordProvider(providers ...RecordProvider) *MergedRecordProvider {
	return &MergedRecordProvider{providers: lo.Filter(providers, func(p RecordProvider, _ int) bool { return p != nil })}
}

func (m *MergedRecordProvider) FetchRawStats(ctx context.Context, playerID string) (RawStatRecord, error) {
	merged := make(RawStatRecord)
	for _, provider := range m.providers {
		record, err := provider.FetchRawStats(ctx, playerID)
		if err != nil {
			return nil, fmt.Errorf("%T: %w", provider, err)
		}
		for name, value := range record {
			if current, ok := merged[name]; !ok || value > current {
				merged[name] = value
			}
		}
	}
	return merged, nil
}

// ListPlayerIDs returns the sorted union of every provider that can list players.
func (m *MergedRecordProvider) ListPlayerIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for _, provider := range m.providers {
		lister, ok := provider.(PlayerLister)
		if !ok {
			continue
		}
		listed, err := lister.ListPlayerIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("%T: %w", provider, err)
		}
		ids = append(ids, listed...)
	}
	ids = lo.Uniq(ids)
	sort.Strings(ids)
	return ids, nil
}

func validatePlayerID(playerID string) error {
	if _, err := uuid.Parse(playerID); err != nil {
		return ErrInvalidPlayerID
	}
	return nil
}

// normalizePlayerIDs drops blanks and duplicates while keeping the first-seen order.
func normalizePlayerIDs(playerIDs []string) []string {
	trimmed := lo.Map(playerIDs, func(id string, _ int) string { return strings.TrimSpace(id) })
	return lo.Uniq(lo.Compact(trimmed))
}

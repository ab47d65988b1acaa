package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/energy-monitor/backend/internal/models"
)

const (
	// sensorPrefix is stripped from sensor IDs when naming files.
	sensorPrefix = "SmartMeter_"

	// HistorySuffix names history files: <short-id>_historico.json.
	HistorySuffix = "_historico.json"
)

// ErrNotFound is returned when a sensor has no file on disk.
var ErrNotFound = errors.New("not found")

// Store defines the interface for the shared file layout.
type Store interface {
	LoadCurrent(sensorID string) (models.Payload, error)
	MergeCurrent(sensorID string, update models.Payload) (models.Payload, error)
	LoadHistory(sensorID string) (*models.HistoryFile, error)
	SaveHistory(h *models.HistoryFile) error
	AppendHistory(sensorID string, rec models.HistoryRecord, limit int) (*models.HistoryFile, error)
	ListHistory() ([]HistoryEntry, error)
	RecentHistory(sensorID string, window, interval time.Duration) ([]models.HistoryRecord, error)
}

// HistoryEntry is one history file found by ListHistory. Err is set when
// the file could not be read or parsed.
type HistoryEntry struct {
	Path string
	File *models.HistoryFile
	Err  error
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu         sync.RWMutex
	currentDir string
	historyDir string
}

// NewLocalStore creates a new LocalStore, creating both directories.
func NewLocalStore(currentDir, historyDir string) (*LocalStore, error) {
	for _, dir := range []string{currentDir, historyDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	return &LocalStore{
		currentDir: currentDir,
		historyDir: historyDir,
	}, nil
}

// ShortID returns the file name stem for a sensor.
func ShortID(sensorID string) string {
	return strings.TrimPrefix(sensorID, sensorPrefix)
}

// CurrentPath returns the path of a sensor's current-state file.
func (s *LocalStore) CurrentPath(sensorID string) string {
	return filepath.Join(s.currentDir, ShortID(sensorID)+".json")
}

// HistoryPath returns the path of a sensor's history file.
func (s *LocalStore) HistoryPath(sensorID string) string {
	return filepath.Join(s.historyDir, ShortID(sensorID)+HistorySuffix)
}

// LoadCurrent reads the current-state file of a sensor.
func (s *LocalStore) LoadCurrent(sensorID string) (models.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadCurrent(sensorID)
}

func (s *LocalStore) loadCurrent(sensorID string) (models.Payload, error) {
	data, err := os.ReadFile(s.CurrentPath(sensorID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("current state for %s: %w", sensorID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading current state: %w", err)
	}

	var p models.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing current state %s: %w", sensorID, err)
	}
	if p == nil {
		p = models.Payload{}
	}
	return p, nil
}

// MergeCurrent merges update into the sensor's current-state file and
// writes it back. A missing file counts as empty; keys not present in update
// are preserved.
func (s *LocalStore) MergeCurrent(sensorID string, update models.Payload) (models.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadCurrent(sensorID)
	if errors.Is(err, ErrNotFound) {
		existing = models.Payload{}
	} else if err != nil {
		return nil, err
	}

	merged := existing.Merge(update)
	if err := writeJSON(s.CurrentPath(sensorID), merged); err != nil {
		return nil, fmt.Errorf("writing current state: %w", err)
	}
	return merged, nil
}

// LoadHistory reads a sensor's history file.
func (s *LocalStore) LoadHistory(sensorID string) (*models.HistoryFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadHistory(sensorID)
}

func (s *LocalStore) loadHistory(sensorID string) (*models.HistoryFile, error) {
	h, err := readHistory(s.HistoryPath(sensorID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("history for %s: %w", sensorID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if h.SensorID == "" {
		h.SensorID = sensorID
	}
	return h, nil
}

// SaveHistory persists the full record sequence of h.
func (s *LocalStore) SaveHistory(h *models.HistoryFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveHistory(h)
}

func (s *LocalStore) saveHistory(h *models.HistoryFile) error {
	if h.SensorID == "" {
		return fmt.Errorf("history file without sensor id")
	}
	if err := writeJSON(s.HistoryPath(h.SensorID), h); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

// AppendHistory appends rec to the sensor's history, keeps only the most
// recent limit records and rewrites the file.
func (s *LocalStore) AppendHistory(sensorID string, rec models.HistoryRecord, limit int) (*models.HistoryFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.loadHistory(sensorID)
	if errors.Is(err, ErrNotFound) {
		h = models.NewHistoryFile(sensorID)
	} else if err != nil {
		return nil, err
	}

	h.Append(rec, limit)
	if err := s.saveHistory(h); err != nil {
		return nil, err
	}
	return h, nil
}

// ListHistory parses every history file in lexical file-name order. A
// missing directory yields no entries. Per-file failures are reported in
// the entry, not as the returned error.
func (s *LocalStore) ListHistory() ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirEntries, err := os.ReadDir(s.historyDir)
	if errors.Is(err, os.ErrNotExist) {
		return []HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing history directory: %w", err)
	}

	var names []string
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), HistorySuffix) {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Strings(names)

	entries := make([]HistoryEntry, 0, len(names))
	for _, name := range names {
		path := filepath.Join(s.historyDir, name)
		h, err := readHistory(path)
		if err == nil && h.SensorID == "" {
			h.SensorID = strings.TrimSuffix(name, HistorySuffix)
		}
		entries = append(entries, HistoryEntry{Path: path, File: h, Err: err})
	}
	return entries, nil
}

// RecentHistory returns the records covering the last window, assuming one
// record per interval.
func (s *LocalStore) RecentHistory(sensorID string, window, interval time.Duration) ([]models.HistoryRecord, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	h, err := s.LoadHistory(sensorID)
	if err != nil {
		return nil, err
	}
	return h.Tail(int(window / interval)), nil
}

func readHistory(path string) (*models.HistoryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	h := &models.HistoryFile{}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if h.Records == nil {
		h.Records = make([]models.HistoryRecord, 0)
	}
	return h, nil
}

// writeJSON encodes v with two-space indentation and no HTML escaping, then
// replaces path atomically.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

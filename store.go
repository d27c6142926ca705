// ABOUTME: Thread-safe in-memory record store with atomic file persistence.
// ABOUTME: Encodes the data file as JSON, YAML or TOML and reloads it on external changes.

package dyndns

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrRecordNotFound is returned when a lookup or a replacement finds no
// record with the requested name and type.
var ErrRecordNotFound = errors.New("record not found")

// storeFile is the envelope for persisted records.
type storeFile struct {
	Records []Record `json:"records" yaml:"records" toml:"records"`
}

// fileCodec encodes the data file according to its extension.
type fileCodec struct {
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

func codecFor(path string) fileCodec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return fileCodec{marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
	case ".toml":
		return fileCodec{marshal: toml.Marshal, unmarshal: toml.Unmarshal}
	default:
		return fileCodec{
			marshal:   func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
			unmarshal: json.Unmarshal,
		}
	}
}

// Store holds DNS records in memory backed by a data file.
type Store struct {
	mu         sync.RWMutex
	records    map[string][]Record // key: lowercase FQDN
	filePath   string
	codec      fileCodec
	reload     time.Duration
	lastMod    time.Time
	stopCh     chan struct{}
	ready      bool
	writeMu    sync.Mutex // serializes writers and reloads; held across file writes
}

// NewStore creates a store backed by the given file path.
// If the file exists, its records are loaded. If not, an empty file is created.
// A reload duration of 0 disables auto-reload.
func NewStore(filePath string, reload time.Duration) (*Store, error) {
	s := &Store{
		records:  make(map[string][]Record),
		filePath: filePath,
		codec:    codecFor(filePath),
		reload:   reload,
		stopCh:   make(chan struct{}),
	}

	if err := s.loadOrCreate(); err != nil {
		return nil, fmt.Errorf("initialising store from %s: %w", filePath, err)
	}

	s.ready = true

	if reload > 0 {
		go s.run()
	}
	return s, nil
}

// Ready reports whether the store has completed initial loading.
func (s *Store) Ready() bool {
	return s.ready
}

// Stop terminates the auto-reload goroutine.
func (s *Store) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Get returns records matching the given FQDN and record type.
func (s *Store) Get(name, qtype string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Record
	for _, r := range s.records[strings.ToLower(name)] {
		if strings.EqualFold(r.Type, qtype) {
			result = append(result, r)
		}
	}
	return result
}

// GetAll returns all records for the given FQDN regardless of type.
func (s *Store) GetAll(name string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[strings.ToLower(name)]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}

// Replace swaps old for r as one change: readers observe either the old
// record or the new one, never neither. Both records must share a name.
// If old is no longer present ErrRecordNotFound is returned and nothing
// changes. The data file is written before the change becomes visible, so
// a failed write leaves the store as it was.
func (s *Store) Replace(old, r Record) error {
	if !strings.EqualFold(old.Name, r.Name) {
		return fmt.Errorf("replace %s with %s: names differ", old.Name, r.Name)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	key := strings.ToLower(old.Name)
	s.mu.RLock()
	recs := s.records[key]
	idx := -1
	for i, existing := range recs {
		if strings.EqualFold(existing.Type, old.Type) && existing.Value == old.Value {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.RUnlock()
		return fmt.Errorf("replace %s %s %s: %w", old.Name, old.Type, old.Value, ErrRecordNotFound)
	}
	updated := make([]Record, len(recs))
	copy(updated, recs)
	updated[idx] = r
	snapshot := s.collectLocked(key, updated)
	s.mu.RUnlock()

	modTime, err := s.writeFile(snapshot)
	if err != nil {
		return fmt.Errorf("replace %s %s: %w", old.Name, old.Type, err)
	}

	s.mu.Lock()
	s.records[key] = updated
	s.lastMod = modTime
	s.updateRecordGaugeLocked()
	s.mu.Unlock()
	return nil
}

// writeFile writes records to the backing file atomically and returns the
// new modification time. Caller must hold writeMu and must NOT hold mu.
func (s *Store) writeFile(all []Record) (time.Time, error) {
	raw, err := s.codec.marshal(storeFile{Records: all})
	if err != nil {
		return time.Time{}, fmt.Errorf("encoding store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), "dyndns-*.tmp")
	if err != nil {
		return time.Time{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("renaming temp to %s: %w", s.filePath, err)
	}

	info, err := os.Stat(s.filePath)
	if err != nil {
		return time.Time{}, nil
	}
	return info.ModTime(), nil
}

// updateRecordGaugeLocked sets storeRecordGauge per record type. Caller must hold mu.
func (s *Store) updateRecordGaugeLocked() {
	counts := make(map[string]float64)
	for _, recs := range s.records {
		for _, r := range recs {
			counts[strings.ToUpper(r.Type)]++
		}
	}
	storeRecordGauge.Reset()
	for t, c := range counts {
		storeRecordGauge.WithLabelValues(t).Set(c)
	}
}

// collectLocked returns all records as a flat slice, with the records
// under key replaced by recs. Caller must hold mu.
func (s *Store) collectLocked(key string, recs []Record) []Record {
	all := append([]Record(nil), recs...)
	for k, v := range s.records {
		if k != key {
			all = append(all, v...)
		}
	}
	return all
}

func (s *Store) loadOrCreate() error {
	raw, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		modTime, err := s.writeFile(nil)
		s.lastMod = modTime
		s.updateRecordGaugeLocked()
		return err
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.filePath, err)
	}

	records, err := s.decode(raw)
	if err != nil {
		return err
	}
	s.records = records
	if info, err := os.Stat(s.filePath); err == nil {
		s.lastMod = info.ModTime()
	}
	s.updateRecordGaugeLocked()
	return nil
}

// decode parses a data file. Invalid records are kept as written, since
// updates store reported values verbatim, but are reported in the log.
func (s *Store) decode(raw []byte) (map[string][]Record, error) {
	var data storeFile
	if err := s.codec.unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.filePath, err)
	}

	records := make(map[string][]Record)
	for i, r := range data.Records {
		checked := r
		if err := checked.Validate(); err != nil {
			log.Warningf("%s: record %d (%s): %v", s.filePath, i, r.Name, err)
		} else {
			r = checked
		}
		key := strings.ToLower(r.Name)
		records[key] = append(records[key], r)
	}
	return records, nil
}

// run is the auto-reload goroutine that checks file mtime periodically.
func (s *Store) run() {
	ticker := time.NewTicker(s.reload)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkReload()
		}
	}
}

func (s *Store) checkReload() {
	// A write in progress will update lastMod itself; try again next tick.
	if !s.writeMu.TryLock() {
		return
	}
	defer s.writeMu.Unlock()

	s.mu.RLock()
	lastMod := s.lastMod
	s.mu.RUnlock()

	info, err := os.Stat(s.filePath)
	if err != nil || !info.ModTime().After(lastMod) {
		return
	}

	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		log.Errorf("reload %s: read error: %v", s.filePath, err)
		return
	}
	records, err := s.decode(raw)
	if err != nil {
		log.Errorf("reload %s: %v", s.filePath, err)
		return
	}

	s.mu.Lock()
	s.records = records
	s.lastMod = info.ModTime()
	s.updateRecordGaugeLocked()
	s.mu.Unlock()
	log.Infof("reloaded %s", s.filePath)
}

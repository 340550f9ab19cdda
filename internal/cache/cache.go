package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Store is a fingerprint-addressed artifact cache persisted under a
// directory tree partitioned by artifact kind. It is safe for concurrent
// use across analysis runs: entries under the same fingerprint serialize
// on a per-key mutex, distinct fingerprints do not block each other.
//
// A corrupt or unreadable entry is always treated as a miss, never as a
// fatal error; the caller recomputes and overwrites it.
type Store struct {
	dir      string
	maxAge   time.Duration
	maxBytes int64

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	hits   atomic.Int64
	misses atomic.Int64
}

// entryMeta is the sidecar bookkeeping record for one cached artifact.
type entryMeta struct {
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	Params    Params    `json:"params"`
}

// Stats reports cache occupancy per artifact kind.
type Stats struct {
	TotalEntries int            `json:"total_entries"`
	TotalBytes   int64          `json:"total_bytes"`
	Hits         int64          `json:"hits"`
	Misses       int64          `json:"misses"`
	ByKind       map[Kind]KindStats `json:"by_kind"`
}

// KindStats reports occupancy of one kind subdirectory.
type KindStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// New opens (creating if needed) a cache rooted at dir with the given
// entry max age and total size cap.
func New(dir string, maxAge time.Duration, maxBytes int64) (*Store, error) {
	if maxAge <= 0 || maxBytes <= 0 {
		return nil, eris.New("cache: max age and max size must be positive")
	}
	for _, kind := range Kinds {
		if err := os.MkdirAll(filepath.Join(dir, string(kind)), 0o755); err != nil {
			return nil, eris.Wrapf(err, "cache: create dir for %s", kind)
		}
	}
	return &Store{
		dir:      dir,
		maxAge:   maxAge,
		maxBytes: maxBytes,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex serializing access to one kind+fingerprint.
func (s *Store) lockFor(kind Kind, fingerprint string) *sync.Mutex {
	key := string(kind) + "/" + fingerprint
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *Store) artifactPath(kind Kind, fingerprint string) string {
	return filepath.Join(s.dir, string(kind), fingerprint+".json")
}

func (s *Store) metaPath(kind Kind, fingerprint string) string {
	return filepath.Join(s.dir, string(kind), fingerprint+".meta.json")
}

// Get returns the artifact bytes stored under the fingerprint, or ok false
// on miss, expiry, or corruption.
func (s *Store) Get(kind Kind, fingerprint string) ([]byte, bool) {
	l := s.lockFor(kind, fingerprint)
	l.Lock()
	defer l.Unlock()

	meta, err := s.readMeta(kind, fingerprint)
	if err != nil {
		s.misses.Add(1)
		return nil, false
	}
	if time.Since(meta.CreatedAt) > s.maxAge {
		s.misses.Add(1)
		return nil, false
	}

	data, err := os.ReadFile(s.artifactPath(kind, fingerprint))
	if err != nil {
		zap.L().Warn("cache: unreadable artifact, treating as miss",
			zap.String("kind", string(kind)),
			zap.String("fingerprint", fingerprint[:8]),
			zap.Error(err))
		s.misses.Add(1)
		return nil, false
	}

	s.hits.Add(1)
	return data, true
}

// Put stores artifact bytes under the fingerprint, silently overwriting
// any existing entry. The write is atomic (temp file + rename) so a
// concurrent reader never observes a partial artifact.
func (s *Store) Put(kind Kind, fingerprint string, artifact []byte, params Params) error {
	l := s.lockFor(kind, fingerprint)
	l.Lock()
	defer l.Unlock()

	meta := entryMeta{
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		Size:      int64(len(artifact)),
		Params:    params,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return eris.Wrap(err, "cache: marshal metadata")
	}

	if err := atomicWrite(s.artifactPath(kind, fingerprint), artifact); err != nil {
		return eris.Wrapf(err, "cache: write artifact %s/%s", kind, fingerprint[:8])
	}
	if err := atomicWrite(s.metaPath(kind, fingerprint), metaJSON); err != nil {
		return eris.Wrapf(err, "cache: write metadata %s/%s", kind, fingerprint[:8])
	}
	return nil
}

// EvictExpired removes entries older than the configured max age. Returns
// the number of entries removed. Calling it twice without an intervening
// Put removes nothing the second time.
func (s *Store) EvictExpired() (int, error) {
	entries, err := s.scan()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if time.Since(e.meta.CreatedAt) > s.maxAge {
			if s.remove(e) {
				removed++
			}
		}
	}
	if removed > 0 {
		zap.L().Info("cache: expired entries evicted", zap.Int("removed", removed))
	}
	return removed, nil
}

// EvictToSizeLimit removes oldest entries (by creation time) until total
// cache size fits under the configured cap. Returns the number removed.
func (s *Store) EvictToSizeLimit() (int, error) {
	entries, err := s.scan()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.bytes
	}
	if total <= s.maxBytes {
		return 0, nil
	}

	sort.Slice(entries, func(a, b int) bool {
		if !entries[a].meta.CreatedAt.Equal(entries[b].meta.CreatedAt) {
			return entries[a].meta.CreatedAt.Before(entries[b].meta.CreatedAt)
		}
		return entries[a].fingerprint < entries[b].fingerprint
	})

	removed := 0
	for _, e := range entries {
		if total <= s.maxBytes {
			break
		}
		if s.remove(e) {
			total -= e.bytes
			removed++
		}
	}
	zap.L().Info("cache: size-limit eviction complete",
		zap.Int("removed", removed), zap.Int64("total_bytes", total))
	return removed, nil
}

// Clear removes every entry of one kind, or of all kinds when kind is
// empty.
func (s *Store) Clear(kind Kind) error {
	kinds := Kinds
	if kind != "" {
		kinds = []Kind{kind}
	}
	for _, k := range kinds {
		dir := filepath.Join(s.dir, string(k))
		names, err := os.ReadDir(dir)
		if err != nil {
			return eris.Wrapf(err, "cache: read dir %s", k)
		}
		for _, n := range names {
			if err := os.Remove(filepath.Join(dir, n.Name())); err != nil && !os.IsNotExist(err) {
				return eris.Wrapf(err, "cache: remove %s", n.Name())
			}
		}
	}
	return nil
}

// Stats walks the cache tree and reports per-kind occupancy.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		ByKind: make(map[Kind]KindStats, len(Kinds)),
	}
	entries, err := s.scan()
	if err != nil {
		return stats, err
	}
	for _, e := range entries {
		ks := stats.ByKind[e.meta.Kind]
		ks.Entries++
		ks.Bytes += e.bytes
		stats.ByKind[e.meta.Kind] = ks
		stats.TotalEntries++
		stats.TotalBytes += e.bytes
	}
	return stats, nil
}

// scanEntry is one cached artifact discovered on disk.
type scanEntry struct {
	kind        Kind
	fingerprint string
	meta        entryMeta
	bytes       int64 // artifact + sidecar
}

// scan reads every entry's sidecar metadata. Entries with unreadable
// metadata are removed on sight — they can never produce a hit.
func (s *Store) scan() ([]scanEntry, error) {
	var entries []scanEntry
	for _, kind := range Kinds {
		dir := filepath.Join(s.dir, string(kind))
		names, err := os.ReadDir(dir)
		if err != nil {
			return nil, eris.Wrapf(err, "cache: read dir %s", kind)
		}
		for _, n := range names {
			name := n.Name()
			if !strings.HasSuffix(name, ".meta.json") {
				continue
			}
			fingerprint := strings.TrimSuffix(name, ".meta.json")
			meta, err := s.readMeta(kind, fingerprint)
			if err != nil {
				zap.L().Warn("cache: dropping entry with corrupt metadata",
					zap.String("kind", string(kind)), zap.String("entry", name))
				_ = os.Remove(filepath.Join(dir, name))
				_ = os.Remove(s.artifactPath(kind, fingerprint))
				continue
			}
			size := fileSize(s.artifactPath(kind, fingerprint)) + fileSize(filepath.Join(dir, name))
			entries = append(entries, scanEntry{
				kind:        kind,
				fingerprint: fingerprint,
				meta:        meta,
				bytes:       size,
			})
		}
	}
	return entries, nil
}

func (s *Store) readMeta(kind Kind, fingerprint string) (entryMeta, error) {
	var meta entryMeta
	raw, err := os.ReadFile(s.metaPath(kind, fingerprint))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

// remove deletes one entry under its per-key lock.
func (s *Store) remove(e scanEntry) bool {
	l := s.lockFor(e.kind, e.fingerprint)
	l.Lock()
	defer l.Unlock()
	errA := os.Remove(s.artifactPath(e.kind, e.fingerprint))
	errM := os.Remove(s.metaPath(e.kind, e.fingerprint))
	return errA == nil || errM == nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// atomicWrite writes data to path via a temp file and rename so readers
// never observe partial contents.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// GetJSON reads and decodes a cached artifact into T. Decode failures are
// a miss.
func GetJSON[T any](s *Store, kind Kind, fingerprint string) (*T, bool) {
	data, ok := s.Get(kind, fingerprint)
	if !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		zap.L().Warn("cache: corrupt artifact, treating as miss",
			zap.String("kind", string(kind)),
			zap.String("fingerprint", fingerprint[:8]),
			zap.Error(err))
		return nil, false
	}
	return &v, true
}

// PutJSON encodes v and stores it under the fingerprint.
func PutJSON[T any](s *Store, kind Kind, fingerprint string, v T, params Params) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "cache: marshal artifact")
	}
	return s.Put(kind, fingerprint, data, params)
}

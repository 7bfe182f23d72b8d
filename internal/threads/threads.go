// Package threads maps thread ids to their per-thread store trio. Each
// thread owns three SQLite files under <dataDir>/<thread>/; threads never
// share state.
package threads

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/keepsake-dev/keepsake/internal/config"
	"github.com/keepsake-dev/keepsake/internal/embedding"
	"github.com/keepsake-dev/keepsake/internal/goals"
	"github.com/keepsake-dev/keepsake/internal/journal"
	"github.com/keepsake-dev/keepsake/internal/memstore"
)

// Thread bundles the three stores for one conversation thread.
type Thread struct {
	ID      string
	Memory  *memstore.Store
	Journal *journal.Store
	Goals   *goals.Store
}

// Registry hands out Thread handles. Stores open their files per
// operation, so handles are cheap and safe to cache for the process
// lifetime.
type Registry struct {
	mu      sync.Mutex
	dataDir string
	cfg     config.Config
	log     *zap.Logger
	embed   embedding.Provider
	threads map[string]*Thread
}

// NewRegistry creates a registry rooted at cfg.DataDir.
func NewRegistry(cfg config.Config, log *zap.Logger, embed embedding.Provider) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		dataDir: cfg.DataDir,
		cfg:     cfg,
		log:     log,
		embed:   embed,
		threads: make(map[string]*Thread),
	}
}

var threadIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateThreadID rejects ids that would escape the data directory or
// produce awkward file names.
func ValidateThreadID(id string) error {
	if id == "" {
		return fmt.Errorf("thread id is required")
	}
	if !threadIDPattern.MatchString(id) {
		return fmt.Errorf("invalid thread id %q (allowed: letters, digits, dot, dash, underscore)", id)
	}
	return nil
}

// GetOrCreate returns the Thread for id, creating its handle on first
// use. Files are created lazily by the stores on first write.
func (r *Registry) GetOrCreate(id string) (*Thread, error) {
	if err := ValidateThreadID(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.threads[id]; ok {
		return t, nil
	}

	dir := filepath.Join(r.dataDir, id)
	t := &Thread{
		ID:     id,
		Memory: memstore.New(filepath.Join(dir, "memories.db"), memstore.WithLogger(r.log)),
		Journal: journal.New(filepath.Join(dir, "journal.db"),
			journal.WithLogger(r.log),
			journal.WithEmbedder(r.embed),
			journal.WithRetention(r.cfg.Retention)),
		Goals: goals.New(filepath.Join(dir, "goals.db"), goals.WithLogger(r.log)),
	}
	r.threads[id] = t
	return t, nil
}

// Clear removes a thread's files from disk and drops its handle. The
// next GetOrCreate starts the thread fresh.
func (r *Registry) Clear(id string) error {
	if err := ValidateThreadID(id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.threads, id)
	if err := os.RemoveAll(filepath.Join(r.dataDir, id)); err != nil {
		return fmt.Errorf("clear thread %s: %w", id, err)
	}
	return nil
}

// List returns the ids of threads that have data on disk.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.dataDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() && threadIDPattern.MatchString(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

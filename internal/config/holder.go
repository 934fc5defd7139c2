package config

import "sync/atomic"

// Holder is the live config of a long-running process. Readers take a
// snapshot with Config; Reload swaps in a new one atomically.
type Holder struct {
	cfg  atomic.Pointer[Config]
	path string
}

func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cfg.Store(cfg)

	return h
}

// Config returns the current snapshot. Callers must not mutate it.
func (h *Holder) Config() *Config { return h.cfg.Load() }

// Path is the file Reload reads.
func (h *Holder) Path() string { return h.path }

// Reload re-reads the file from disk. Only a config that parses and
// validates replaces the current one; environment and flag overrides from
// startup are not reapplied. It returns the replaced and the new snapshot.
func (h *Holder) Reload() (prev, next *Config, err error) {
	next, err = LoadOrDefault(h.path)
	if err != nil {
		return h.Config(), nil, err
	}

	return h.cfg.Swap(next), next, nil
}

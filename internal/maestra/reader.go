package maestra

import (
	"sync"

	"consolidador/internal/domain"
	"consolidador/internal/infra"
)

// Source locates the active master file. It returns domain.ErrMasterMissing
// when none is loaded.
type Source interface {
	MasterPath() (string, error)
}

// Reader parses the active master file on demand and keeps the result until
// a different file becomes active.
type Reader struct {
	source Source
	logger *infra.Logger
	open   func(path string) (*Catalog, error)

	mu   sync.Mutex
	path string
	cat  *Catalog
}

// NewReader wraps source.
func NewReader(source Source, logger *infra.Logger) *Reader {
	return &Reader{source: source, logger: infra.OrNop(logger), open: Open}
}

// Catalog returns the parsed active master file.
func (r *Reader) Catalog() (*Catalog, error) {
	return r.load(false)
}

// Reload parses the active master file again.
func (r *Reader) Reload() (*Catalog, error) {
	return r.load(true)
}

// CountContracts reports how many master contracts a job selection covers.
func (r *Reader) CountContracts(params domain.JobParams) (int, error) {
	cat, err := r.Catalog()
	if err != nil {
		return 0, err
	}
	return cat.Count(params), nil
}

func (r *Reader) load(force bool) (*Catalog, error) {
	path, err := r.source.MasterPath()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !force && r.cat != nil && r.path == path {
		return r.cat, nil
	}
	cat, err := r.open(path)
	if err != nil {
		return nil, err
	}
	r.path, r.cat = path, cat
	r.logger.Info().
		Str("sheet", cat.summary.Sheet).
		Int("contracts", cat.summary.TotalContracts).
		Int("rows", cat.summary.TotalRows).
		Msg("maestra: parsed")
	return cat, nil
}

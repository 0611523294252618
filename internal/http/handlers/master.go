package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"consolidador/internal/domain"
	"consolidador/internal/maestra"
)

type masterStatusResponse struct {
	Loaded     bool   `json:"cargada"`
	File       string `json:"archivo,omitempty"`
	Original   string `json:"filename,omitempty"`
	Size       int64  `json:"tamaño,omitempty"`
	HumanSize  string `json:"tamaño_formateado,omitempty"`
	UploadedAt string `json:"fecha_carga,omitempty"`
	Message    string `json:"mensaje,omitempty"`
	*catalogTotals
}

// catalogTotals is omitted when the master cannot be inspected.
type catalogTotals struct {
	TotalContracts int   `json:"total_contratos"`
	TotalProviders int   `json:"total_prestadores"`
	Years          []int `json:"años_disponibles"`
}

// MasterUpload stores the multipart field "file" as the active master file.
func (a *App) MasterUpload(w http.ResponseWriter, r *http.Request) {
	limit := a.MaxUploadBytes
	if limit <= 0 {
		limit = 50 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, r, http.StatusRequestEntityTooLarge, msgUploadTooLarge, limit>>20)
			return
		}
		a.error(w, r, http.StatusBadRequest, msgUploadMissing)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, r, http.StatusBadRequest, msgUploadMissing)
		return
	}
	defer file.Close()
	if header.Size > limit {
		a.error(w, r, http.StatusRequestEntityTooLarge, msgUploadTooLarge, limit>>20)
		return
	}

	info, err := a.Master.Save(r.Context(), header.Filename, file)
	if err != nil {
		a.fail(w, r, err, msgMasterNotLoaded)
		return
	}
	a.logger().Info().
		Str("file", info.StoredName).
		Str("original", info.OriginalName).
		Int64("size", info.Size).
		Msg("master: uploaded")

	res := map[string]any{
		"success":  true,
		"filename": info.OriginalName,
		"mensaje":  a.message(r, msgMasterLoaded, info.OriginalName),
		"maestra":  info,
	}
	if a.Catalog != nil {
		cat, err := a.Catalog.Reload()
		switch {
		case err == nil:
			res["mensaje"] = a.message(r, msgMasterParsed, cat.Summary().TotalContracts)
			res["resumen"] = cat.Summary()
		case errors.Is(err, maestra.ErrUnreadable):
		default:
			a.logger().Warn().Err(err).Str("file", info.StoredName).Msg("master: parse failed")
			if rmErr := a.Master.Remove(); rmErr != nil {
				a.logger().Error().Err(rmErr).Msg("master: remove unparsable file failed")
			}
			a.error(w, r, http.StatusBadRequest, msgMasterInvalid, err.Error())
			return
		}
	}
	a.json(w, http.StatusOK, res)
}

// MasterStatus reports whether a master file is loaded.
func (a *App) MasterStatus(w http.ResponseWriter, r *http.Request) {
	info, err := a.Master.Info()
	if errors.Is(err, domain.ErrMasterMissing) {
		a.json(w, http.StatusOK, masterStatusResponse{Loaded: false, Message: a.message(r, msgMasterNotLoaded)})
		return
	}
	if err != nil {
		a.fail(w, r, err, msgMasterNotLoaded)
		return
	}
	res := masterStatusResponse{
		Loaded:     true,
		File:       info.StoredName,
		Original:   info.OriginalName,
		Size:       info.Size,
		HumanSize:  info.HumanSize,
		UploadedAt: info.UploadedAt.Format(time.RFC3339),
	}
	if a.Catalog != nil {
		if cat, err := a.Catalog.Catalog(); err == nil {
			s := cat.Summary()
			res.catalogTotals = &catalogTotals{
				TotalContracts: s.TotalContracts,
				TotalProviders: s.TotalProviders,
				Years:          s.Years,
			}
		} else if !errors.Is(err, maestra.ErrUnreadable) {
			a.logger().Warn().Err(err).Msg("master: catalog unavailable")
		}
	}
	a.json(w, http.StatusOK, res)
}

// MasterDelete forgets the active master file.
func (a *App) MasterDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Master.Remove(); err != nil {
		if errors.Is(err, domain.ErrMasterMissing) {
			a.error(w, r, http.StatusNotFound, msgMasterNotLoaded)
			return
		}
		a.fail(w, r, err, msgMasterNotLoaded)
		return
	}
	a.logger().Info().Msg("master: deleted")
	a.json(w, http.StatusOK, map[string]any{"success": true, "mensaje": a.message(r, msgMasterDeleted)})
}

// catalog answers 404 when no master is loaded and reports whether the caller
// may continue.
func (a *App) catalog(w http.ResponseWriter, r *http.Request) (*maestra.Catalog, bool) {
	if a.Catalog == nil {
		a.error(w, r, http.StatusNotFound, msgMasterNotLoaded)
		return nil, false
	}
	cat, err := a.Catalog.Catalog()
	if err != nil {
		if errors.Is(err, domain.ErrMasterMissing) {
			a.error(w, r, http.StatusNotFound, msgMasterNotLoaded)
			return nil, false
		}
		a.fail(w, r, err, msgMasterNotLoaded)
		return nil, false
	}
	return cat, true
}

// MasterSummary returns the parsed content of the master file.
func (a *App) MasterSummary(w http.ResponseWriter, r *http.Request) {
	cat, ok := a.catalog(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "resumen": cat.Summary()})
}

// MasterYears lists the years present in the master with their counts.
func (a *App) MasterYears(w http.ResponseWriter, r *http.Request) {
	cat, ok := a.catalog(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "años": cat.Years()})
}

// MasterContracts lists the contracts a job would process for ?año=&numero=.
func (a *App) MasterContracts(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("año"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.error(w, r, http.StatusBadRequest, msgInvalidYear)
			return
		}
		year = n
	}
	cat, ok := a.catalog(w, r)
	if !ok {
		return
	}
	contracts := cat.Select(year, r.URL.Query().Get("numero"))
	a.json(w, http.StatusOK, map[string]any{"success": true, "cantidad": len(contracts), "contratos": contracts})
}

// MasterEntries lists every master row that carries a contract number.
func (a *App) MasterEntries(w http.ResponseWriter, r *http.Request) {
	cat, ok := a.catalog(w, r)
	if !ok {
		return
	}
	entries := cat.Entries()
	a.json(w, http.StatusOK, map[string]any{"success": true, "total": len(entries), "contratos": entries})
}

// MasterReload parses the master file again.
func (a *App) MasterReload(w http.ResponseWriter, r *http.Request) {
	if a.Catalog == nil {
		a.error(w, r, http.StatusNotFound, msgMasterNotLoaded)
		return
	}
	cat, err := a.Catalog.Reload()
	if err != nil {
		if errors.Is(err, domain.ErrMasterMissing) {
			a.error(w, r, http.StatusNotFound, msgMasterNotLoaded)
			return
		}
		if !errors.Is(err, maestra.ErrUnreadable) {
			a.error(w, r, http.StatusBadRequest, msgMasterInvalid, err.Error())
			return
		}
		a.fail(w, r, err, msgMasterNotLoaded)
		return
	}
	a.logger().Info().Int("contracts", cat.Summary().TotalContracts).Msg("master: reloaded")
	a.json(w, http.StatusOK, map[string]any{
		"success":         true,
		"mensaje":         a.message(r, msgMasterReloaded),
		"total_contratos": cat.Summary().TotalContracts,
	})
}

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"consolidador/internal/domain"
	"consolidador/pkg/zip"
)

var downloadTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".csv":  "text/csv",
	".zip":  "application/zip",
}

// DownloadsList lists the generated files, newest first.
func (a *App) DownloadsList(w http.ResponseWriter, r *http.Request) {
	files, err := a.Outputs.List()
	if err != nil {
		a.fail(w, r, err, msgFileNotFound, "")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "cantidad": len(files), "archivos": files})
}

// DownloadsFile streams one generated file as an attachment.
func (a *App) DownloadsFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if strings.ContainsAny(name, `/\`) {
		a.error(w, r, http.StatusBadRequest, msgInvalidFilename)
		return
	}
	f, info, err := a.Outputs.Open(name)
	if err != nil {
		a.fail(w, r, err, msgFileNotFound, name)
		return
	}
	defer f.Close()

	contentType, ok := downloadTypes[strings.ToLower(filepath.Ext(info.Name))]
	if !ok {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	http.ServeContent(w, r, info.Name, info.ModifiedAt, f)
}

// DownloadsDelete removes one generated file.
func (a *App) DownloadsDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if strings.ContainsAny(name, `/\`) {
		a.error(w, r, http.StatusBadRequest, msgInvalidFilename)
		return
	}
	if err := a.Outputs.Delete(name); err != nil {
		a.fail(w, r, err, msgFileNotFound, name)
		return
	}
	a.logger().Info().Str("file", name).Msg("downloads: file deleted")
	a.json(w, http.StatusOK, map[string]any{"success": true, "mensaje": a.message(r, msgFileDeleted, name)})
}

// DownloadsClear removes every generated file.
func (a *App) DownloadsClear(w http.ResponseWriter, r *http.Request) {
	removed, err := a.Outputs.Clear()
	if err != nil {
		a.fail(w, r, err, msgFileNotFound, "")
		return
	}
	a.logger().Info().Int("removed", removed).Msg("downloads: folder cleared")
	a.json(w, http.StatusOK, map[string]any{"success": true, "mensaje": a.message(r, msgFilesCleared, removed)})
}

// DownloadsZip streams the requested files as one archive. The body is a JSON
// array of file names.
func (a *App) DownloadsZip(w http.ResponseWriter, r *http.Request) {
	var names []string
	if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
		a.error(w, r, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	if len(names) == 0 {
		a.error(w, r, http.StatusBadRequest, msgNoFilesSelected)
		return
	}

	entries := make([]zip.Entry, 0, len(names))
	for _, name := range names {
		info, err := a.Outputs.Stat(name)
		if err != nil {
			a.fail(w, r, err, msgFileNotFound, name)
			return
		}
		entries = append(entries, zip.Entry{
			Name:     info.Name,
			Modified: info.ModifiedAt,
			Open:     a.opener(info.Name),
		})
	}

	archive := "consolidado_" + a.now().Format("20060102_150405") + ".zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": archive}))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, entries); err != nil {
		// Headers are gone; the client sees a truncated archive.
		a.logger().Error().Err(err).Str("archive", archive).Msg("downloads: zip failed")
	}
}

func (a *App) opener(name string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		f, _, err := a.Outputs.Open(name)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, errors.New("file vanished: " + name)
			}
			return nil, err
		}
		return f, nil
	}
}

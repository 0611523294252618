package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"consolidador/internal/remote"
)

var sftpDownloadTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".xlsb": "application/vnd.ms-excel.sheet.binary.macroEnabled.12",
	".pdf":  "application/pdf",
	".csv":  "text/csv",
}

func (a *App) browser(w http.ResponseWriter, r *http.Request) (*remote.Browser, bool) {
	if a.SFTP == nil {
		a.error(w, r, http.StatusServiceUnavailable, msgSFTPUnavailable)
		return nil, false
	}
	return a.SFTP, true
}

func (a *App) remoteFail(w http.ResponseWriter, r *http.Request, err error) {
	a.logger().Warn().Err(err).Str("path", r.URL.Path).Msg("sftp: request failed")
	if errors.Is(err, remote.ErrNotConnected) {
		a.error(w, r, http.StatusBadGateway, msgSFTPConnectFailed)
		return
	}
	a.error(w, r, http.StatusBadGateway, msgSFTPFailed, err.Error())
}

// SFTPStatus reports whether the SFTP session is alive.
func (a *App) SFTPStatus(w http.ResponseWriter, r *http.Request) {
	b, ok := a.browser(w, r)
	if !ok {
		return
	}
	var server *string
	connected := b.Connected()
	if connected {
		s := b.Server()
		server = &s
	}
	a.json(w, http.StatusOK, map[string]any{"conectado": connected, "servidor": server})
}

// SFTPConnect opens a new SFTP session.
func (a *App) SFTPConnect(w http.ResponseWriter, r *http.Request) {
	b, ok := a.browser(w, r)
	if !ok {
		return
	}
	if err := b.Connect(r.Context()); err != nil {
		a.remoteFail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  a.message(r, msgSFTPConnected),
		"servidor": b.Server(),
	})
}

// SFTPDisconnect closes the SFTP session.
func (a *App) SFTPDisconnect(w http.ResponseWriter, r *http.Request) {
	b, ok := a.browser(w, r)
	if !ok {
		return
	}
	b.Disconnect()
	a.json(w, http.StatusOK, map[string]any{"success": true, "message": a.message(r, msgSFTPDisconnected)})
}

// SFTPList lists ?ruta= (default ".").
func (a *App) SFTPList(w http.ResponseWriter, r *http.Request) {
	b, ok := a.browser(w, r)
	if !ok {
		return
	}
	dir := r.URL.Query().Get("ruta")
	if dir == "" {
		dir = "."
	}
	items, err := b.List(r.Context(), dir)
	if err != nil {
		a.remoteFail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "ruta": dir, "cantidad": len(items), "items": items})
}

// SFTPNavigate lists ?ruta= split into folders and files, with its parent.
func (a *App) SFTPNavigate(w http.ResponseWriter, r *http.Request) {
	b, ok := a.browser(w, r)
	if !ok {
		return
	}
	dir := r.URL.Query().Get("ruta")
	if dir == "" {
		a.error(w, r, http.StatusBadRequest, msgSFTPPathRequired)
		return
	}
	nav, err := b.Navigate(r.Context(), dir)
	if err != nil {
		a.remoteFail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, struct {
		Success bool `json:"success"`
		remote.Navigation
	}{true, nav})
}

// SFTPMainFolder lists the folders of the contract tree root.
func (a *App) SFTPMainFolder(w http.ResponseWriter, r *http.Request) {
	b, ok := a.browser(w, r)
	if !ok {
		return
	}
	folders, err := b.MainFolders(r.Context())
	if err != nil {
		a.remoteFail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":  true,
		"ruta":     b.MainFolder(),
		"cantidad": len(folders),
		"carpetas": folders,
	})
}

// SFTPFindContract locates the folder of ?numero= within ?año=.
func (a *App) SFTPFindContract(w http.ResponseWriter, r *http.Request) {
	b, ok := a.browser(w, r)
	if !ok {
		return
	}
	number := strings.TrimSpace(r.URL.Query().Get("numero"))
	year := strings.TrimSpace(r.URL.Query().Get("año"))
	if number == "" {
		a.error(w, r, http.StatusBadRequest, msgSFTPContractRequired)
		return
	}
	if _, err := strconv.Atoi(year); err != nil {
		a.error(w, r, http.StatusBadRequest, msgInvalidYear)
		return
	}
	match, err := b.FindContract(r.Context(), number, year)
	if err != nil {
		a.remoteFail(w, r, err)
		return
	}
	res := struct {
		Success bool   `json:"success"`
		Message string `json:"mensaje,omitempty"`
		remote.ContractMatch
	}{Success: true, ContractMatch: match}
	switch {
	case match.YearMissing:
		res.Message = a.message(r, msgSFTPYearMissing, year)
	case !match.Found:
		res.Message = a.message(r, msgSFTPContractMissing, number, year)
	}
	a.json(w, http.StatusOK, res)
}

// SFTPYears lists the year folders of the contract tree, newest first.
func (a *App) SFTPYears(w http.ResponseWriter, r *http.Request) {
	b, ok := a.browser(w, r)
	if !ok {
		return
	}
	years, err := b.Years(r.Context())
	if err != nil {
		a.remoteFail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "años": years})
}

// SFTPDownload streams the remote file ?ruta=.
func (a *App) SFTPDownload(w http.ResponseWriter, r *http.Request) {
	b, ok := a.browser(w, r)
	if !ok {
		return
	}
	p := r.URL.Query().Get("ruta")
	if p == "" {
		a.error(w, r, http.StatusBadRequest, msgSFTPPathRequired)
		return
	}
	rc, fi, err := b.Open(r.Context(), p)
	if err != nil {
		a.remoteFail(w, r, err)
		return
	}
	defer rc.Close()

	name := path.Base(p)
	ctype, ok := sftpDownloadTypes[strings.ToLower(path.Ext(name))]
	if !ok {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if n, err := io.Copy(w, rc); err != nil {
		a.logger().Warn().Err(err).Str("file", p).Int64("written", n).Msg("sftp: download interrupted")
	}
}

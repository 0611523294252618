// Package apiclient talks to the consolidation backend over HTTP.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"consolidador/internal/domain"
	"consolidador/internal/infra"
	"consolidador/internal/remote"
	"consolidador/internal/storage"
)

// DefaultBaseURL matches the backend's default listen address.
const DefaultBaseURL = "http://localhost:8000/api"

// Options configures the backend client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Detail)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// MasterStatus is the answer of GET /maestra/estado.
type MasterStatus struct {
	Loaded     bool      `json:"cargada"`
	File       string    `json:"archivo"`
	Original   string    `json:"filename"`
	Size       string    `json:"tamaño_formateado"`
	UploadedAt time.Time `json:"fecha_carga"`
	Message    string    `json:"mensaje"`
	// Totals stay zero when the backend cannot inspect the file.
	TotalContracts int   `json:"total_contratos"`
	TotalProviders int   `json:"total_prestadores"`
	Years          []int `json:"años_disponibles"`
}

// ContractFolder is the answer of GET /sftp/buscar-contrato.
type ContractFolder struct {
	remote.ContractMatch
	Message string `json:"mensaje"`
}

// Health is the answer of GET /health.
type Health struct {
	Status   string `json:"status"`
	Master   bool   `json:"maestra_cargada"`
	Database string `json:"database"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"mensaje"`
}

// NewClient constructs a client with defaults applied.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("api: invalid base url %q: %w", baseURL, err)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     infra.OrNop(opts.Logger),
	}, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SubmitJob posts the job parameters. A rejected submission is returned as a
// result with Success false and Detail set, not as an error.
func (c *Client) SubmitJob(ctx context.Context, params domain.JobParams) (domain.SubmitResult, error) {
	var res domain.SubmitResult
	err := c.doJSON(ctx, http.MethodPost, "/procesar", params, &res)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < 500 {
		return domain.SubmitResult{Success: false, Detail: apiErr.Detail}, nil
	}
	if err != nil {
		return domain.SubmitResult{}, err
	}
	return res, nil
}

// JobLogs fetches entries after offset since together with the job status.
func (c *Client) JobLogs(ctx context.Context, jobID string, since int) (domain.LogPage, error) {
	var page domain.LogPage
	path := "/procesar/logs/" + url.PathEscape(jobID) + "?desde=" + strconv.Itoa(since)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return domain.LogPage{}, err
	}
	return page, nil
}

// JobStatus fetches the full job record.
func (c *Client) JobStatus(ctx context.Context, jobID string) (domain.Job, error) {
	var job domain.Job
	if err := c.doJSON(ctx, http.MethodGet, "/procesar/estado/"+url.PathEscape(jobID), nil, &job); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// CancelJob asks the backend to stop a job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/procesar/cancelar/"+url.PathEscape(jobID), nil, nil)
}

// History lists past and running jobs, newest first.
func (c *Client) History(ctx context.Context) ([]domain.JobSummary, error) {
	var res struct {
		History []domain.JobSummary `json:"historial"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/procesar/historial", nil, &res); err != nil {
		return nil, err
	}
	return res.History, nil
}

// JobArtifacts lists the files a job generated.
func (c *Client) JobArtifacts(ctx context.Context, jobID string) ([]domain.Artifact, error) {
	var res struct {
		Files []domain.Artifact `json:"archivos"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/procesar/job/"+url.PathEscape(jobID)+"/archivos", nil, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

// ListFiles lists downloadable output files.
func (c *Client) ListFiles(ctx context.Context) ([]storage.FileInfo, error) {
	var res struct {
		Files []storage.FileInfo `json:"archivos"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/descargas/listar", nil, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

// DeleteFile removes one output file.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodDelete, "/descargas/archivo/"+url.PathEscape(name), nil, nil)
}

// ClearFiles removes every output file and returns the backend's message.
func (c *Client) ClearFiles(ctx context.Context) (string, error) {
	var res messageResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/descargas/limpiar", nil, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

// DownloadFile streams one output file into w.
func (c *Client) DownloadFile(ctx context.Context, name string, w io.Writer) (int64, error) {
	return c.download(ctx, http.MethodGet, "/descargas/archivo/"+url.PathEscape(name), nil, w)
}

// ZipFiles streams a zip of the named output files into w.
func (c *Client) ZipFiles(ctx context.Context, names []string, w io.Writer) (int64, error) {
	if len(names) == 0 {
		return 0, errors.New("api: at least one file is required")
	}
	return c.download(ctx, http.MethodPost, "/descargas/zip", names, w)
}

// UploadMaster uploads the master spreadsheet as multipart form field "file".
func (c *Client) UploadMaster(ctx context.Context, filename string, r io.Reader) (storage.MasterInfo, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return storage.MasterInfo{}, fmt.Errorf("api: build form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return storage.MasterInfo{}, fmt.Errorf("api: read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return storage.MasterInfo{}, fmt.Errorf("api: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/maestra", body)
	if err != nil {
		return storage.MasterInfo{}, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var res struct {
		Master storage.MasterInfo `json:"maestra"`
	}
	if err := c.send(req, &res); err != nil {
		return storage.MasterInfo{}, err
	}
	return res.Master, nil
}

// MasterStatus reports whether a master file is loaded.
func (c *Client) MasterStatus(ctx context.Context) (MasterStatus, error) {
	var res MasterStatus
	if err := c.doJSON(ctx, http.MethodGet, "/maestra/estado", nil, &res); err != nil {
		return MasterStatus{}, err
	}
	return res, nil
}

// DeleteMaster removes the loaded master file.
func (c *Client) DeleteMaster(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/maestra", nil, nil)
}

// MasterSummary returns the parsed content of the master file.
func (c *Client) MasterSummary(ctx context.Context) (domain.MasterSummary, error) {
	var res struct {
		Summary domain.MasterSummary `json:"resumen"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/maestra/resumen", nil, &res); err != nil {
		return domain.MasterSummary{}, err
	}
	return res.Summary, nil
}

// MasterYears lists the years of the master file with their contract counts.
func (c *Client) MasterYears(ctx context.Context) ([]domain.YearCount, error) {
	var res struct {
		Years []domain.YearCount `json:"años"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/maestra/anos", nil, &res); err != nil {
		return nil, err
	}
	return res.Years, nil
}

// MasterContracts lists the contracts a job would process. Zero year and an
// empty number select everything.
func (c *Client) MasterContracts(ctx context.Context, year int, number string) ([]domain.Contract, error) {
	q := url.Values{}
	if year > 0 {
		q.Set("año", strconv.Itoa(year))
	}
	if number != "" {
		q.Set("numero", number)
	}
	path := "/maestra/contratos"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res struct {
		Contracts []domain.Contract `json:"contratos"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Contracts, nil
}

// MasterEntries lists every master row that carries a contract number.
func (c *Client) MasterEntries(ctx context.Context) ([]domain.MasterEntry, error) {
	var res struct {
		Entries []domain.MasterEntry `json:"contratos"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/maestra/contratos/todos", nil, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// ReloadMaster has the backend parse the master file again and returns its
// contract count.
func (c *Client) ReloadMaster(ctx context.Context) (int, error) {
	var res struct {
		Total int `json:"total_contratos"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/maestra/recargar", nil, &res); err != nil {
		return 0, err
	}
	return res.Total, nil
}

// FindContractFolder looks the folder of a contract up on the SFTP server.
func (c *Client) FindContractFolder(ctx context.Context, number string, year int) (ContractFolder, error) {
	q := url.Values{"numero": {number}, "año": {strconv.Itoa(year)}}
	var res ContractFolder
	if err := c.doJSON(ctx, http.MethodGet, "/sftp/buscar-contrato?"+q.Encode(), nil, &res); err != nil {
		return ContractFolder{}, err
	}
	return res, nil
}

// RemoteYears lists the year folders of the SFTP contract tree.
func (c *Client) RemoteYears(ctx context.Context) ([]remote.YearFolder, error) {
	var res struct {
		Years []remote.YearFolder `json:"años"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/sftp/años-disponibles", nil, &res); err != nil {
		return nil, err
	}
	return res.Years, nil
}

// Health checks the backend. The health route lives beside the API root.
func (c *Client) Health(ctx context.Context) (Health, error) {
	root := strings.TrimSuffix(c.baseURL, "/api")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, root+"/health", nil)
	if err != nil {
		return Health{}, fmt.Errorf("api: build request: %w", err)
	}
	var res Health
	if err := c.send(req, &res); err != nil {
		return Health{}, err
	}
	return res, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Msg("api: request completed")
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, method, path string, in any, w io.Writer) (int64, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("api: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("api: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("api: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return 0, decodeError(resp.StatusCode, raw)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("api: download: %w", err)
	}
	return n, nil
}

func decodeError(status int, raw []byte) error {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
		return &APIError{Status: status, Detail: detail.Detail}
	}
	return &APIError{Status: status, Detail: strings.TrimSpace(string(raw))}
}

package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"consolidador/internal/apiclient"
	"consolidador/internal/domain"
	"consolidador/internal/http/handlers"
	"consolidador/internal/infra"
	"consolidador/internal/jobs"
	"consolidador/internal/maestra"
	"consolidador/internal/monitor"
	"consolidador/internal/remote"
	"consolidador/internal/storage"
)

// lineRunner prints the given lines, writes one output file and exits 0.
type lineRunner struct {
	lines   []string
	outputs *storage.FileStore
	hold    chan struct{}
}

func (r *lineRunner) Run(ctx context.Context, _ jobs.RunSpec, onLine func(string)) error {
	for _, l := range r.lines {
		onLine(l)
	}
	if r.hold != nil {
		select {
		case <-r.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	_, err := r.outputs.Write(ctx, "consolidado_2024.xlsx", strings.NewReader("xlsx"))
	return err
}

type testEnv struct {
	server  *httptest.Server
	outputs *storage.FileStore
	master  *storage.MasterStore
	runner  *lineRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	outputs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("outputs: %v", err)
	}
	uploads, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("uploads: %v", err)
	}
	master := storage.NewMasterStore(uploads)
	catalog := maestra.NewReader(master, nil)
	runner := &lineRunner{
		outputs: outputs,
		lines: []string{
			"PROCESAMIENTO V5 - MODO: POR_ANO",
			"Procesando CONTRATO [1/2] 0001-2024",
			"  ✅ 120 servicios extraídos",
			"Procesando CONTRATO [2/2] 0002-2024",
			"  ✅ 80 servicios extraídos",
		},
	}
	manager, err := jobs.NewManager(jobs.Options{
		Runner:  runner,
		Command: []string{"consolidar"},
		Outputs: outputs,
		Master:  master,
		Catalog: catalog,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	app := &handlers.App{
		Jobs:    manager,
		Outputs: outputs,
		Master:  master,
		Catalog: catalog,
		SFTP:    memBrowser(t),
	}
	router := NewRouter(app, Options{
		Logger:          zerolog.Nop(),
		CORSOrigins:     []string{"*"},
		DefaultLocale:   "es",
		SubmitPerMinute: 100,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		_ = manager.Shutdown(context.Background())
	})
	return &testEnv{server: srv, outputs: outputs, master: master, runner: runner}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

const sftpRoot = "/RED ASISTENCIAL"

// memBrowser serves an in-memory contract tree over piped SFTP sessions.
func memBrowser(t *testing.T) *remote.Browser {
	t.Helper()
	fs := sftp.InMemHandler()
	dial := func(context.Context) (*sftp.Client, io.Closer, error) {
		serverConn, clientConn := net.Pipe()
		server := sftp.NewRequestServer(serverConn, fs)
		go func() { _ = server.Serve() }()
		client, err := sftp.NewClientPipe(clientConn, clientConn)
		if err != nil {
			server.Close()
			return nil, nil, err
		}
		return client, server, nil
	}

	client, closer, err := dial(context.Background())
	if err != nil {
		t.Fatalf("sftp seed: %v", err)
	}
	defer closer.Close()
	defer client.Close()
	for _, dir := range []string{sftpRoot + "/CONTRATOS 2024/0662 CLINICA NORTE", sftpRoot + "/CONTRATOS 2023"} {
		if err := client.MkdirAll(dir); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}
	f, err := client.Create(sftpRoot + "/CONTRATOS 2024/0662 CLINICA NORTE/tarifas.xlsx")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, _ = f.Write([]byte("tarifas"))
	_ = f.Close()

	b := remote.NewBrowser(infra.SFTPConfig{Host: "sftp.example", Port: 22, RemoteFolder: sftpRoot, Retries: 1}, nil).
		WithDialer(dial)
	t.Cleanup(b.Disconnect)
	return b
}

// masterWorkbook builds a master file with contracts 1 and 2 of 2024 and 7 of 2023.
func masterWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "CONTRATOS VIGENTES"); err != nil {
		t.Fatalf("SetSheetName: %v", err)
	}
	rows := [][]any{
		{"TIPO PROVEEDOR", "NUMERO CONTRATO", "AÑO CONTRATO", "RAZON SOCIAL"},
		{"PRESTADOR DE SERVICIOS DE SALUD", "0001", 2024, "Clínica Norte"},
		{"PRESTADOR DE SERVICIOS DE SALUD", "0002", 2024, "Hospital Sur"},
		{"PRESTADOR DE SERVICIOS DE SALUD", "0007", 2023, "IPS Centro"},
	}
	for i, row := range rows {
		row := row
		if err := f.SetSheetRow("CONTRATOS VIGENTES", "A"+strconv.Itoa(i+1), &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.String()
}

func uploadMaster(t *testing.T, e *testEnv, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", name)
	_, _ = part.Write([]byte(content))
	_ = mw.Close()
	resp, _ := e.do(t, http.MethodPost, "/api/upload/maestra", &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
	return resp
}

func TestSubmitWithoutMasterIsLocalized(t *testing.T) {
	e := newTestEnv(t)
	body := strings.NewReader(`{"procesar_todo": true}`)

	resp, data := e.do(t, http.MethodPost, "/api/procesar", body, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	if !strings.Contains(string(data), "No hay maestra cargada") {
		t.Fatalf("expected spanish detail, got %s", data)
	}

	resp, data = e.do(t, http.MethodPost, "/api/procesar", strings.NewReader(`{"procesar_todo": true}`), map[string]string{"Accept-Language": "en-US"})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(data), "No master file loaded") {
		t.Fatalf("expected english detail, got %d %s", resp.StatusCode, data)
	}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	e := newTestEnv(t)
	if resp := uploadMaster(t, e, "maestra.pdf", "x"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp, data := e.do(t, http.MethodGet, "/api/maestra/estado", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"cargada":false`) {
		t.Fatalf("estado = %d %s", resp.StatusCode, data)
	}
}

func TestMonitorDrivesJobThroughAPI(t *testing.T) {
	e := newTestEnv(t)
	if resp := uploadMaster(t, e, "maestra.xlsx", masterWorkbook(t)); resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}

	client, err := apiclient.NewClient(apiclient.Options{BaseURL: e.server.URL + "/api"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	mon, err := monitor.New(monitor.Options{Backend: client, Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("monitor.New: %v", err)
	}
	defer mon.Close()

	jobID, err := mon.Start(context.Background(), domain.JobParams{Year: 2024})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for !mon.Snapshot().State.Terminal() {
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish: %#v", mon.Snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap := mon.Snapshot()
	if snap.State != domain.JobStateCompleted {
		t.Fatalf("state = %s", snap.State)
	}
	if snap.Cursor != 5 || len(mon.Logs()) != 5 {
		t.Fatalf("cursor = %d logs = %d, want 5", snap.Cursor, len(mon.Logs()))
	}
	if snap.Stats.Successes != 2 || snap.Stats.Services != 200 || snap.Stats.TotalContracts != 2 {
		t.Fatalf("stats = %#v", snap.Stats)
	}
	if len(snap.Artifacts) != 1 || snap.Artifacts[0] != "consolidado_2024.xlsx" {
		t.Fatalf("artifacts = %v", snap.Artifacts)
	}

	resp, data := e.do(t, http.MethodGet, "/api/procesar/job/"+jobID+"/archivos", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "/api/descargas/archivo/consolidado_2024.xlsx") {
		t.Fatalf("archivos = %d %s", resp.StatusCode, data)
	}

	resp, data = e.do(t, http.MethodGet, "/api/procesar/historial", nil, nil)
	var history struct {
		Historial []domain.JobSummary `json:"historial"`
	}
	if err := json.Unmarshal(data, &history); err != nil || len(history.Historial) != 1 {
		t.Fatalf("historial = %d %s", resp.StatusCode, data)
	}
	if history.Historial[0].State != domain.JobStateCompleted || history.Historial[0].ArtifactCount != 1 {
		t.Fatalf("historial row = %#v", history.Historial[0])
	}

	resp, _ = e.do(t, http.MethodDelete, "/api/procesar/cancelar/"+jobID, nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("cancel finished job = %d, want 409", resp.StatusCode)
	}
}

func TestLogsEndpointOffsets(t *testing.T) {
	e := newTestEnv(t)
	e.runner.hold = make(chan struct{})
	uploadMaster(t, e, "maestra.xlsx", masterWorkbook(t))

	resp, data := e.do(t, http.MethodPost, "/api/procesar", strings.NewReader(`{"año": 2024}`), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit = %d %s", resp.StatusCode, data)
	}
	var submitted domain.SubmitResult
	if err := json.Unmarshal(data, &submitted); err != nil || submitted.JobID == "" {
		t.Fatalf("submit body %s", data)
	}
	if submitted.EstimatedContracts != 2 || submitted.Message != "Procesamiento iniciado para 2 contratos" {
		t.Fatalf("submit = %#v", submitted)
	}

	var page domain.LogPage
	deadline := time.Now().Add(2 * time.Second)
	for page.TotalLogs < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("logs never reached 5: %#v", page)
		}
		_, data = e.do(t, http.MethodGet, "/api/procesar/logs/"+submitted.JobID+"?desde=3", nil, nil)
		page = domain.LogPage{}
		if err := json.Unmarshal(data, &page); err != nil {
			t.Fatalf("decode: %v %s", err, data)
		}
	}
	if len(page.Logs) != 2 || page.State != domain.JobStateRunning {
		t.Fatalf("page = %#v", page)
	}
	if !strings.Contains(string(data), `"estado":"en_proceso"`) {
		t.Fatalf("wire state missing: %s", data)
	}

	resp, _ = e.do(t, http.MethodGet, "/api/procesar/logs/"+submitted.JobID+"?desde=abc", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad desde = %d", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodDelete, "/api/procesar/cancelar/"+submitted.JobID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel = %d", resp.StatusCode)
	}
	_, data = e.do(t, http.MethodGet, "/api/procesar/estado/"+submitted.JobID, nil, nil)
	if !strings.Contains(string(data), `"estado":"cancelado"`) {
		t.Fatalf("estado = %s", data)
	}

	resp, _ = e.do(t, http.MethodGet, "/api/procesar/estado/unknown", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown job = %d", resp.StatusCode)
	}
}

func TestDownloadsLifecycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for _, name := range []string{"a.xlsx", "b.csv"} {
		if _, err := e.outputs.Write(ctx, name, strings.NewReader("data-"+name)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	resp, data := e.do(t, http.MethodGet, "/api/descargas/listar", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"cantidad":2`) {
		t.Fatalf("listar = %d %s", resp.StatusCode, data)
	}

	resp, data = e.do(t, http.MethodGet, "/api/descargas/archivo/b.csv", nil, nil)
	if resp.StatusCode != http.StatusOK || string(data) != "data-b.csv" {
		t.Fatalf("archivo = %d %q", resp.StatusCode, data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "b.csv") {
		t.Fatalf("content disposition = %q", cd)
	}

	resp, data = e.do(t, http.MethodPost, "/api/descargas/zip", strings.NewReader(`["a.xlsx","b.csv"]`), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("zip = %d %s", resp.StatusCode, data)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil || len(zr.File) != 2 {
		t.Fatalf("zip archive invalid: %v", err)
	}

	resp, _ = e.do(t, http.MethodPost, "/api/descargas/zip", strings.NewReader(`["missing.xlsx"]`), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("zip missing = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/api/descargas/zip", strings.NewReader(`[]`), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("zip empty = %d", resp.StatusCode)
	}

	resp, data = e.do(t, http.MethodDelete, "/api/descargas/archivo/a.xlsx", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "a.xlsx eliminado") {
		t.Fatalf("delete = %d %s", resp.StatusCode, data)
	}
	resp, _ = e.do(t, http.MethodDelete, "/api/descargas/archivo/a.xlsx", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete again = %d", resp.StatusCode)
	}

	resp, data = e.do(t, http.MethodDelete, "/api/descargas/limpiar", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "1 archivos eliminados") {
		t.Fatalf("limpiar = %d %s", resp.StatusCode, data)
	}
}

func TestHealthAndMasterLifecycle(t *testing.T) {
	e := newTestEnv(t)
	resp, data := e.do(t, http.MethodGet, "/health", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"maestra_cargada":false`) {
		t.Fatalf("health = %d %s", resp.StatusCode, data)
	}

	uploadMaster(t, e, "maestra.xlsx", masterWorkbook(t))
	_, data = e.do(t, http.MethodGet, "/api/maestra/estado", nil, nil)
	if !strings.Contains(string(data), `"cargada":true`) || !strings.Contains(string(data), `"filename":"maestra.xlsx"`) {
		t.Fatalf("estado = %s", data)
	}
	if !strings.Contains(string(data), `"total_contratos":3`) || !strings.Contains(string(data), `"años_disponibles":[2023,2024]`) {
		t.Fatalf("estado totals = %s", data)
	}

	resp, _ = e.do(t, http.MethodDelete, "/api/maestra", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete master = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodDelete, "/api/maestra", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete master again = %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.do(t, http.MethodOptions, "/api/procesar", nil, map[string]string{"Origin": "http://localhost:3000"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func TestMasterCatalogRoutes(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.do(t, http.MethodGet, "/api/maestra/años", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("años without master = %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "maestra.xlsx")
	_, _ = part.Write([]byte(masterWorkbook(t)))
	_ = mw.Close()
	resp, data := e.do(t, http.MethodPost, "/api/upload/maestra", &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "Maestra cargada: 3 contratos") {
		t.Fatalf("upload = %d %s", resp.StatusCode, data)
	}
	if !strings.Contains(string(data), `"hoja_utilizada":"CONTRATOS VIGENTES"`) {
		t.Fatalf("upload summary = %s", data)
	}

	resp, data = e.do(t, http.MethodGet, "/api/maestra/años", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `{"año":2024,"cantidad_contratos":2}`) {
		t.Fatalf("años = %d %s", resp.StatusCode, data)
	}
	_, ascii := e.do(t, http.MethodGet, "/api/maestra/anos", nil, nil)
	if string(ascii) != string(data) {
		t.Fatalf("anos = %s", ascii)
	}

	query := url.Values{"año": {"2024"}, "numero": {"2"}}.Encode()
	resp, data = e.do(t, http.MethodGet, "/api/maestra/contratos?"+query, nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"cantidad":1`) || !strings.Contains(string(data), `"codigo_completo":"2-2024"`) {
		t.Fatalf("contratos = %d %s", resp.StatusCode, data)
	}
	resp, data = e.do(t, http.MethodGet, "/api/maestra/contratos", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"cantidad":3`) {
		t.Fatalf("contratos sin filtro = %d %s", resp.StatusCode, data)
	}
	resp, _ = e.do(t, http.MethodGet, "/api/maestra/contratos?"+url.Values{"año": {"abc"}}.Encode(), nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("año inválido = %d", resp.StatusCode)
	}

	resp, data = e.do(t, http.MethodGet, "/api/maestra/contratos/todos", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"total":3`) {
		t.Fatalf("todos = %d %s", resp.StatusCode, data)
	}
	resp, data = e.do(t, http.MethodGet, "/api/maestra/resumen", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"total_prestadores":3`) {
		t.Fatalf("resumen = %d %s", resp.StatusCode, data)
	}
	resp, data = e.do(t, http.MethodPost, "/api/maestra/recargar", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"total_contratos":3`) {
		t.Fatalf("recargar = %d %s", resp.StatusCode, data)
	}

	resp, data = e.do(t, http.MethodPost, "/api/procesar", strings.NewReader(`{"procesar_todo": true}`), nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "Procesamiento iniciado para 3 contratos") {
		t.Fatalf("submit = %d %s", resp.StatusCode, data)
	}
}

func TestUploadRejectsUnparsableMaster(t *testing.T) {
	e := newTestEnv(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "maestra.xlsx")
	_, _ = part.Write([]byte("not a workbook"))
	_ = mw.Close()
	resp, data := e.do(t, http.MethodPost, "/api/upload/maestra", &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(data), "Error al procesar maestra") {
		t.Fatalf("upload = %d %s", resp.StatusCode, data)
	}
	_, data = e.do(t, http.MethodGet, "/api/maestra/estado", nil, nil)
	if !strings.Contains(string(data), `"cargada":false`) {
		t.Fatalf("estado = %s", data)
	}
}

func TestBinaryMasterIsStoredButNotInspected(t *testing.T) {
	e := newTestEnv(t)
	if resp := uploadMaster(t, e, "maestra.xlsb", "binario"); resp.StatusCode != http.StatusOK {
		t.Fatalf("upload = %d", resp.StatusCode)
	}
	_, data := e.do(t, http.MethodGet, "/api/maestra/estado", nil, nil)
	if !strings.Contains(string(data), `"cargada":true`) || strings.Contains(string(data), "total_contratos") {
		t.Fatalf("estado = %s", data)
	}
	resp, _ := e.do(t, http.MethodGet, "/api/maestra/años", nil, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("años = %d, want 422", resp.StatusCode)
	}
	resp, data = e.do(t, http.MethodPost, "/api/procesar", strings.NewReader(`{"año": 2024}`), nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "Procesamiento iniciado en modo") {
		t.Fatalf("submit = %d %s", resp.StatusCode, data)
	}
}

func TestSFTPRoutes(t *testing.T) {
	e := newTestEnv(t)

	_, data := e.do(t, http.MethodGet, "/api/sftp/estado", nil, nil)
	if string(data) != `{"conectado":false,"servidor":null}`+"\n" {
		t.Fatalf("estado = %s", data)
	}
	resp, data := e.do(t, http.MethodPost, "/api/sftp/conectar", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"servidor":"sftp.example:22"`) {
		t.Fatalf("conectar = %d %s", resp.StatusCode, data)
	}
	_, data = e.do(t, http.MethodGet, "/api/sftp/estado", nil, nil)
	if !strings.Contains(string(data), `"conectado":true`) {
		t.Fatalf("estado = %s", data)
	}

	resp, data = e.do(t, http.MethodGet, "/api/sftp/listar?"+url.Values{"ruta": {sftpRoot}}.Encode(), nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"cantidad":2`) {
		t.Fatalf("listar = %d %s", resp.StatusCode, data)
	}
	resp, _ = e.do(t, http.MethodGet, "/api/sftp/navegar", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("navegar sin ruta = %d", resp.StatusCode)
	}
	resp, data = e.do(t, http.MethodGet, "/api/sftp/navegar?"+url.Values{"ruta": {sftpRoot + "/CONTRATOS 2024"}}.Encode(), nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"ruta_padre":"`+sftpRoot+`"`) {
		t.Fatalf("navegar = %d %s", resp.StatusCode, data)
	}
	resp, data = e.do(t, http.MethodGet, "/api/sftp/carpeta-principal", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"cantidad":2`) {
		t.Fatalf("carpeta-principal = %d %s", resp.StatusCode, data)
	}
	resp, data = e.do(t, http.MethodGet, "/api/sftp/años-disponibles", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `{"año":2024,"carpeta":"CONTRATOS 2024"`) {
		t.Fatalf("años-disponibles = %d %s", resp.StatusCode, data)
	}

	find := func(number, year string) string {
		t.Helper()
		query := url.Values{"numero": {number}, "año": {year}}.Encode()
		resp, data := e.do(t, http.MethodGet, "/api/sftp/buscar-contrato?"+query, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("buscar %s-%s = %d %s", number, year, resp.StatusCode, data)
		}
		return string(data)
	}
	if got := find("662", "2024"); !strings.Contains(got, `"encontrado":true`) || !strings.Contains(got, `"carpeta":"0662 CLINICA NORTE"`) {
		t.Fatalf("buscar 662 = %s", got)
	}
	if got := find("7", "2024"); !strings.Contains(got, "Contrato 7 no encontrado en CONTRATOS 2024") {
		t.Fatalf("buscar 7 = %s", got)
	}
	if got := find("662", "1999"); !strings.Contains(got, "No existe la carpeta CONTRATOS 1999") {
		t.Fatalf("buscar 1999 = %s", got)
	}
	resp, _ = e.do(t, http.MethodGet, "/api/sftp/buscar-contrato?numero=662", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("buscar sin año = %d", resp.StatusCode)
	}

	file := sftpRoot + "/CONTRATOS 2024/0662 CLINICA NORTE/tarifas.xlsx"
	resp, data = e.do(t, http.MethodGet, "/api/sftp/descargar?"+url.Values{"ruta": {file}}.Encode(), nil, nil)
	if resp.StatusCode != http.StatusOK || string(data) != "tarifas" {
		t.Fatalf("descargar = %d %q", resp.StatusCode, data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "attachment; filename=tarifas.xlsx" {
		t.Fatalf("content disposition = %q", cd)
	}
	resp, _ = e.do(t, http.MethodGet, "/api/sftp/descargar?"+url.Values{"ruta": {sftpRoot}}.Encode(), nil, nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("descargar carpeta = %d", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodPost, "/api/sftp/desconectar", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("desconectar = %d", resp.StatusCode)
	}
	_, data = e.do(t, http.MethodGet, "/api/sftp/estado", nil, nil)
	if !strings.Contains(string(data), `"conectado":false`) {
		t.Fatalf("estado after disconnect = %s", data)
	}
}

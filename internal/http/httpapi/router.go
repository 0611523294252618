package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"consolidador/internal/http/handlers"
	"consolidador/internal/infra"
	"consolidador/internal/middleware"
)

// Options carries the cross-cutting settings of the router.
type Options struct {
	Logger          infra.Logger
	CORSOrigins     []string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	SubmitPerMinute int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/health", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/procesar", func(r chi.Router) {
			r.With(middleware.RateLimit(opts.SubmitPerMinute, time.Minute)).Post("/", app.ProcessSubmit)
			r.Get("/estado/{job_id}", app.ProcessStatus)
			r.Get("/logs/{job_id}", app.ProcessLogs)
			r.Delete("/cancelar/{job_id}", app.ProcessCancel)
			r.Get("/historial", app.ProcessHistory)
			r.Get("/job/{job_id}/archivos", app.ProcessArtifacts)
		})

		r.Post("/upload/maestra", app.MasterUpload)
		r.Route("/maestra", func(r chi.Router) {
			r.Get("/estado", app.MasterStatus)
			r.Delete("/", app.MasterDelete)
			r.Get("/resumen", app.MasterSummary)
			r.Get("/años", app.MasterYears)
			r.Get("/anos", app.MasterYears)
			r.Get("/contratos", app.MasterContracts)
			r.Get("/contratos/todos", app.MasterEntries)
			r.Post("/recargar", app.MasterReload)
		})

		r.Route("/sftp", func(r chi.Router) {
			r.Get("/estado", app.SFTPStatus)
			r.Post("/conectar", app.SFTPConnect)
			r.Post("/desconectar", app.SFTPDisconnect)
			r.Get("/listar", app.SFTPList)
			r.Get("/navegar", app.SFTPNavigate)
			r.Get("/carpeta-principal", app.SFTPMainFolder)
			r.Get("/buscar-contrato", app.SFTPFindContract)
			r.Get("/años-disponibles", app.SFTPYears)
			r.Get("/descargar", app.SFTPDownload)
		})

		r.Route("/descargas", func(r chi.Router) {
			r.Get("/listar", app.DownloadsList)
			r.Get("/archivo/{filename}", app.DownloadsFile)
			r.Delete("/archivo/{filename}", app.DownloadsDelete)
			r.Delete("/limpiar", app.DownloadsClear)
			r.Post("/zip", app.DownloadsZip)
		})
	})

	return r
}

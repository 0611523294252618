// Package commands implements the consolidador command line client.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"consolidador/internal/apiclient"
	"consolidador/internal/infra"
	"consolidador/internal/prefs"
)

// AppContext is what every action needs: preferences, an API client and the
// output stream.
type AppContext struct {
	Prefs     prefs.Prefs
	PrefsPath string
	Client    *apiclient.Client
	Logger    *infra.Logger
	Out       io.Writer
}

type app struct {
	out io.Writer
}

// New builds the command tree writing its output to out.
func New(out io.Writer) *cli.Command {
	a := &app{out: out}
	return &cli.Command{
		Name:  "consolidador",
		Usage: "Cliente del Consolidador T25",
		// Exit codes are applied by main, never inside Run.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "archivo de preferencias YAML",
				Value: prefs.DefaultPath(),
			},
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "URL base de la API (sobrescribe las preferencias)",
				Sources: cli.EnvVars("CONSOLIDADOR_API_URL"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "muestra los registros del cliente en stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "procesar",
				Usage: "inicia un procesamiento y sigue su avance",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "todo", Usage: "procesa todos los contratos"},
					&cli.IntFlag{Name: "ano", Usage: "año de los contratos"},
					&cli.StringFlag{Name: "contrato", Usage: "número de contrato dentro del año"},
					&cli.StringFlag{Name: "filtro", Usage: "muestra solo las líneas que contienen el texto"},
				},
				Action: a.processAction,
			},
			{
				Name:      "estado",
				Usage:     "muestra el estado de un job",
				ArgsUsage: "JOB_ID",
				Action:    a.statusAction,
			},
			{
				Name:   "historial",
				Usage:  "lista los jobs recientes",
				Action: a.historyAction,
			},
			{
				Name:  "maestra",
				Usage: "gestiona el archivo maestro",
				Commands: []*cli.Command{
					{Name: "subir", Usage: "carga un archivo maestro", ArgsUsage: "ARCHIVO", Action: a.masterUploadAction},
					{Name: "estado", Usage: "indica si hay maestra cargada", Action: a.masterStatusAction},
					{Name: "eliminar", Usage: "elimina la maestra cargada", Action: a.masterDeleteAction},
					{Name: "anos", Usage: "lista los años con contratos", Action: a.masterYearsAction},
					{
						Name:  "contratos",
						Usage: "lista los contratos que procesaría un job",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "ano", Usage: "año de los contratos"},
							&cli.StringFlag{Name: "numero", Usage: "número de contrato"},
						},
						Action: a.masterContractsAction,
					},
					{Name: "recargar", Usage: "vuelve a leer la maestra cargada", Action: a.masterReloadAction},
				},
			},
			{
				Name:  "sftp",
				Usage: "consulta las carpetas de contratos del servidor SFTP",
				Commands: []*cli.Command{
					{
						Name:      "buscar",
						Usage:     "busca la carpeta de un contrato",
						ArgsUsage: "NUMERO",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "ano", Usage: "año del contrato"},
						},
						Action: a.remoteFindAction,
					},
					{Name: "anos", Usage: "lista las carpetas CONTRATOS por año", Action: a.remoteYearsAction},
				},
			},
			{
				Name:  "descargas",
				Usage: "gestiona los archivos generados",
				Commands: []*cli.Command{
					{Name: "listar", Usage: "lista los archivos generados", Action: a.downloadsListAction},
					{
						Name:      "bajar",
						Usage:     "descarga un archivo",
						ArgsUsage: "NOMBRE",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "destino", Usage: "carpeta de destino", Value: "."},
						},
						Action: a.downloadsGetAction,
					},
					{Name: "eliminar", Usage: "elimina un archivo", ArgsUsage: "NOMBRE", Action: a.downloadsDeleteAction},
					{Name: "limpiar", Usage: "elimina todos los archivos generados", Action: a.downloadsClearAction},
					{
						Name:      "zip",
						Usage:     "descarga varios archivos en un zip",
						ArgsUsage: "NOMBRE...",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "salida", Usage: "ruta del zip", Value: "consolidado.zip"},
						},
						Action: a.downloadsZipAction,
					},
				},
			},
			{
				Name:      "tema",
				Usage:     "muestra o cambia el tema de colores",
				ArgsUsage: "[light|dark]",
				Action:    a.themeAction,
			},
		},
	}
}

// NewAppContext loads preferences and builds the API client. The --api-url
// flag wins over the preferences file.
func (a *app) NewAppContext(cmd *cli.Command) (*AppContext, error) {
	path := cmd.String("config")
	p, err := prefs.Load(path)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if cmd.Bool("verbose") {
		logger = infra.NewLoggerTo(os.Stderr, "development")
	}

	baseURL := p.APIURL
	if v := strings.TrimSpace(cmd.String("api-url")); v != "" {
		baseURL = v
	}
	client, err := apiclient.NewClient(apiclient.Options{BaseURL: baseURL, Logger: &logger})
	if err != nil {
		return nil, err
	}
	return &AppContext{Prefs: p, PrefsPath: path, Client: client, Logger: &logger, Out: a.out}, nil
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.Args().First())
	if v == "" {
		return "", cli.Exit(fmt.Sprintf("falta el argumento %s", name), 2)
	}
	return v, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

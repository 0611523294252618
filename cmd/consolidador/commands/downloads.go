package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

func (a *app) downloadsListAction(ctx context.Context, cmd *cli.Command) error {
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	files, err := env.Client.ListFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		a.printf("No hay archivos generados\n")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVO\tTAMAÑO\tMODIFICADO")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, f.HumanSize, f.ModifiedAt.Local().Format(timeLayout))
	}
	return tw.Flush()
}

func (a *app) downloadsGetAction(ctx context.Context, cmd *cli.Command) error {
	name, err := requireArg(cmd, "NOMBRE")
	if err != nil {
		return err
	}
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	dest := filepath.Join(cmd.String("destino"), filepath.Base(name))
	n, err := saveTo(dest, func(f *os.File) (int64, error) {
		return env.Client.DownloadFile(ctx, name, f)
	})
	if err != nil {
		return err
	}
	a.printf("%s descargado (%d bytes)\n", dest, n)
	return nil
}

func (a *app) downloadsDeleteAction(ctx context.Context, cmd *cli.Command) error {
	name, err := requireArg(cmd, "NOMBRE")
	if err != nil {
		return err
	}
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	if err := env.Client.DeleteFile(ctx, name); err != nil {
		return err
	}
	a.printf("Archivo %s eliminado\n", name)
	return nil
}

func (a *app) downloadsClearAction(ctx context.Context, cmd *cli.Command) error {
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	msg, err := env.Client.ClearFiles(ctx)
	if err != nil {
		return err
	}
	a.printf("%s\n", msg)
	return nil
}

func (a *app) downloadsZipAction(ctx context.Context, cmd *cli.Command) error {
	names := cmd.Args().Slice()
	if len(names) == 0 {
		return cli.Exit("indique al menos un archivo", 2)
	}
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	dest := cmd.String("salida")
	n, err := saveTo(dest, func(f *os.File) (int64, error) {
		return env.Client.ZipFiles(ctx, names, f)
	})
	if err != nil {
		return err
	}
	a.printf("%s guardado con %d archivos (%d bytes)\n", dest, len(names), n)
	return nil
}

// saveTo writes through a temporary file so a failed download leaves nothing
// behind at dest.
func saveTo(dest string, write func(*os.File) (int64, error)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".descarga-*")
	if err != nil {
		return 0, err
	}
	n, err := write(tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}

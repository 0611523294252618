package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

func (a *app) masterUploadAction(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "ARCHIVO")
	if err != nil {
		return err
	}
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("abrir %s: %w", path, err)
	}
	defer f.Close()

	info, err := env.Client.UploadMaster(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	a.printf("Maestra cargada: %s (%s)\n", info.OriginalName, info.HumanSize)
	return nil
}

func (a *app) masterStatusAction(ctx context.Context, cmd *cli.Command) error {
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	status, err := env.Client.MasterStatus(ctx)
	if err != nil {
		return err
	}
	if !status.Loaded {
		a.printf("No hay maestra cargada\n")
		return nil
	}
	a.printf("Maestra: %s (%s), cargada %s\n", status.Original, status.Size, status.UploadedAt.Local().Format(timeLayout))
	if len(status.Years) > 0 {
		a.printf("Contratos: %d en %d años (%d prestadores)\n", status.TotalContracts, len(status.Years), status.TotalProviders)
	}
	return nil
}

func (a *app) masterDeleteAction(ctx context.Context, cmd *cli.Command) error {
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	if err := env.Client.DeleteMaster(ctx); err != nil {
		return err
	}
	a.printf("Maestra eliminada\n")
	return nil
}

func (a *app) masterYearsAction(ctx context.Context, cmd *cli.Command) error {
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	years, err := env.Client.MasterYears(ctx)
	if err != nil {
		return err
	}
	if len(years) == 0 {
		a.printf("La maestra no tiene contratos con año\n")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AÑO\tCONTRATOS")
	for _, y := range years {
		fmt.Fprintf(tw, "%d\t%d\n", y.Year, y.Contracts)
	}
	return tw.Flush()
}

func (a *app) masterContractsAction(ctx context.Context, cmd *cli.Command) error {
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	contracts, err := env.Client.MasterContracts(ctx, cmd.Int("ano"), cmd.String("numero"))
	if err != nil {
		return err
	}
	if len(contracts) == 0 {
		a.printf("Ningún contrato coincide\n")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTRATO\tAÑO\tPRESTADOR")
	for _, c := range contracts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Number, c.Year, c.Provider)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	a.printf("%d contratos\n", len(contracts))
	return nil
}

func (a *app) masterReloadAction(ctx context.Context, cmd *cli.Command) error {
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	total, err := env.Client.ReloadMaster(ctx)
	if err != nil {
		return err
	}
	a.printf("Maestra recargada: %d contratos\n", total)
	return nil
}

func (a *app) remoteFindAction(ctx context.Context, cmd *cli.Command) error {
	number, err := requireArg(cmd, "NUMERO")
	if err != nil {
		return err
	}
	year := cmd.Int("ano")
	if year <= 0 {
		return cli.Exit("indique --ano", 2)
	}
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	folder, err := env.Client.FindContractFolder(ctx, number, year)
	if err != nil {
		return err
	}
	if !folder.Found {
		return cli.Exit(folder.Message, 1)
	}
	a.printf("%s\n", folder.Path)
	if folder.Content != nil {
		a.printf("%d carpetas, %d archivos\n", folder.Content.FolderCount, folder.Content.FileCount)
	}
	return nil
}

func (a *app) remoteYearsAction(ctx context.Context, cmd *cli.Command) error {
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	years, err := env.Client.RemoteYears(ctx)
	if err != nil {
		return err
	}
	for _, y := range years {
		a.printf("%d  %s\n", y.Year, y.Path)
	}
	return nil
}

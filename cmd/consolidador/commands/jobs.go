package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
)

const timeLayout = "2006-01-02 15:04:05"

func (a *app) statusAction(ctx context.Context, cmd *cli.Command) error {
	jobID, err := requireArg(cmd, "JOB_ID")
	if err != nil {
		return err
	}
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	job, err := env.Client.JobStatus(ctx, jobID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Job:\t%s\n", job.ID)
	fmt.Fprintf(tw, "Estado:\t%s\n", job.State.Wire())
	fmt.Fprintf(tw, "Progreso:\t%.0f%%\n", job.Progress)
	fmt.Fprintf(tw, "Mensaje:\t%s\n", job.StatusMessage)
	fmt.Fprintf(tw, "Modo:\t%s\n", job.Mode)
	if job.ContractsTotal > 0 {
		fmt.Fprintf(tw, "Contratos:\t%d/%d\n", job.ContractsProcessed, job.ContractsTotal)
	}
	if job.CurrentContract != "" {
		fmt.Fprintf(tw, "Contrato actual:\t%s\n", job.CurrentContract)
	}
	fmt.Fprintf(tw, "Inicio:\t%s\n", job.StartedAt.Local().Format(timeLayout))
	if job.FinishedAt != nil {
		fmt.Fprintf(tw, "Fin:\t%s\n", job.FinishedAt.Local().Format(timeLayout))
	}
	if len(job.Artifacts) > 0 {
		fmt.Fprintf(tw, "Archivos:\t%s\n", strings.Join(job.Artifacts, ", "))
	}
	for _, e := range job.Errors {
		fmt.Fprintf(tw, "Error:\t%s\n", e)
	}
	return tw.Flush()
}

func (a *app) historyAction(ctx context.Context, cmd *cli.Command) error {
	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	history, err := env.Client.History(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		a.printf("No hay jobs registrados\n")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tESTADO\tMODO\tAÑO\tINICIO\tDURACIÓN\tARCHIVOS")
	for _, row := range history {
		duration := "-"
		if row.FinishedAt != nil {
			duration = row.FinishedAt.Sub(row.StartedAt).Round(time.Second).String()
		}
		year := row.Year
		if year == "" {
			year = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			row.ID, row.State.Wire(), row.Mode, year,
			row.StartedAt.Local().Format(timeLayout), duration, row.ArtifactCount)
	}
	return tw.Flush()
}

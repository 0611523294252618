package commands

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"consolidador/internal/domain"
	"consolidador/internal/monitor"
)

const cancelTimeout = 10 * time.Second

// processAction submits a job and follows it until it ends. Interrupting the
// command cancels the job on the backend.
func (a *app) processAction(ctx context.Context, cmd *cli.Command) error {
	params := domain.JobParams{
		All:            cmd.Bool("todo"),
		Year:           cmd.Int("ano"),
		ContractNumber: cmd.String("contrato"),
	}
	if err := params.Validate(); err != nil {
		return cli.Exit("seleccione --todo o --ano", 2)
	}

	env, err := a.NewAppContext(cmd)
	if err != nil {
		return err
	}
	interval, err := env.Prefs.Interval()
	if err != nil {
		return err
	}

	renderer := NewRenderer(env.Out, env.Prefs.Theme, ColorEnabled(env.Out))
	filter := cmd.String("filtro")
	finished := make(chan struct{})
	var once sync.Once

	mon, err := monitor.New(monitor.Options{
		Backend:         env.Client,
		Interval:        interval,
		MaxPollFailures: env.Prefs.MaxPollFailures,
		Logger:          env.Logger,
		OnUpdate: func(u monitor.Update) {
			renderer.Entries(monitor.FilterEntries(u.Entries, filter))
			if u.Snapshot.State.Terminal() || u.Snapshot.Lost {
				once.Do(func() { close(finished) })
			}
		},
	})
	if err != nil {
		return err
	}
	defer mon.Close()

	jobID, err := mon.Start(ctx, params)
	if err != nil {
		return err
	}
	a.printf("Job %s iniciado (modo %s)\n", jobID, params.Mode())

	select {
	case <-finished:
	case <-ctx.Done():
		cancelCtx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		if err := mon.Cancel(cancelCtx); err != nil && !errors.Is(err, monitor.ErrNoActiveJob) {
			a.printf("No se pudo confirmar la cancelación: %v\n", err)
		}
	}

	snap := mon.Snapshot()
	renderer.Footer(snap)
	switch {
	case snap.Lost:
		return cli.Exit("se perdió la conexión con el servidor; consulte con: consolidador estado "+jobID, 1)
	case snap.State == domain.JobStateFailed:
		return cli.Exit("el procesamiento terminó con error: "+snap.StatusMessage, 1)
	case snap.State == domain.JobStateCancelled:
		return cli.Exit("procesamiento cancelado", 130)
	}
	return nil
}

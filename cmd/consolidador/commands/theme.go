package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"consolidador/internal/prefs"
)

// themeAction prints the current theme, or stores a new one.
func (a *app) themeAction(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	p, err := prefs.Load(path)
	if err != nil {
		return err
	}
	raw := cmd.Args().First()
	if raw == "" {
		a.printf("Tema actual: %s\n", p.Theme)
		return nil
	}
	theme, err := prefs.ParseTheme(raw)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	p.Theme = theme
	if err := p.Save(path); err != nil {
		return err
	}
	a.printf("Tema cambiado a %s\n", theme)
	return nil
}

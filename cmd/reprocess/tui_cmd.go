package main

import (
	"github.com/fentz26/reprocess/internal/tui"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the interactive dashboard",
	Long:  `Launches the terminal dashboard. Logs go to the configured log file so they do not disturb the screen.`,
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	e, err := newClientEnv(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer e.Close()

	app := tui.New(tui.Deps{
		Session: e.session,
		Client:  e.client,
		Live:    e.dialer(),
		Logger:  e.logger,
		Metrics: e.metrics,
	})
	return app.Run()
}

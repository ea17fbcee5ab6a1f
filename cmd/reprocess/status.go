package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that the backend is reachable",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reprocess %s\n", version)
	},
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := newClientEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()

	ok, err := e.client.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("backend %s unreachable: %w", cfg.API, err)
	}
	if !ok {
		return fmt.Errorf("backend %s reports unhealthy", cfg.API)
	}

	sess := e.session.Read()
	role := "not signed in"
	if sess.Authenticated() {
		role = string(sess.Role)
	}
	fmt.Printf("Backend: %s (ok)\n", cfg.API)
	fmt.Printf("Session: %s\n", role)
	return nil
}

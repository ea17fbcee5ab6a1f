package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session's role",
	RunE:  runWhoami,
}

var (
	loginUsername string
	loginPassword string
)

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username (prompted when empty)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (prompted when empty)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginUsername == "" || loginPassword == "" {
		if err := promptCredentials(); err != nil {
			return err
		}
	}

	e, err := newClientEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()

	sess, err := e.session.Login(cmd.Context(), strings.TrimSpace(loginUsername), loginPassword)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in to %s as %s (%s)\n", cfg.API, loginUsername, sess.Role)
	return nil
}

func promptCredentials() error {
	var fields []huh.Field
	if loginUsername == "" {
		fields = append(fields, huh.NewInput().Title("Username").Value(&loginUsername))
	}
	if loginPassword == "" {
		fields = append(fields, huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&loginPassword))
	}
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

func runLogout(cmd *cobra.Command, args []string) error {
	e, err := newClientEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.session.Logout(); err != nil {
		return err
	}
	fmt.Println("Signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	e, err := newClientEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()

	sess := e.session.Read()
	if !sess.Authenticated() {
		fmt.Println("Not signed in. Use 'reprocess login' to authenticate.")
		return nil
	}
	fmt.Printf("Signed in to %s with role %s\n", cfg.API, sess.Role)
	return nil
}

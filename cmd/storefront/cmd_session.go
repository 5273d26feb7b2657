package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/storefront/internal/storefront"
)

var loginToken string

var loginCmd = &cobra.Command{
	Use:   "login --token <jwt>",
	Short: "Store a session token issued by the storefront",
	Long: `Stores a bearer token for later commands. The token is decoded to show
who it belongs to; it is not issued or verified here.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token and cart mirror",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "bearer token (required)")
	_ = loginCmd.MarkFlagRequired("token")
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := storefront.SaveToken(cmd.Context(), store, loginToken)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", session.UserID, roleName(session.Role))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	l, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer l.close(cmd.ErrOrStderr())

	if err := l.Logout(cmd.Context()); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	l, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer l.close(cmd.ErrOrStderr())

	session := l.Session()
	if session == nil {
		return errors.New("not logged in")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", session.UserID, roleName(session.Role))
	return nil
}

func roleName(role string) string {
	if role == "" {
		return "no role"
	}
	return role
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for a user",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "username to issue the token for")
	_ = tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) error {
	a, err := openApp(os.Stderr, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.users.Lookup(cmd.Context(), tokenUser)
	if err != nil {
		return fmt.Errorf("user %q: %w", tokenUser, err)
	}
	token, err := a.tokens.Issue(user)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

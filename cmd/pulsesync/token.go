package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/pulsesync/internal/credential"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the server access token",
	Long: `The daemon uploads with a bearer token obtained out of band:

  1. pulsesync token url        open the printed URL and sign in
  2. pulsesync token set <url>  paste the URL the browser was redirected to`,
}

var tokenURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the authorization URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		if cfg.ServerURL == "" {
			return ErrNoServer
		}
		u, err := credential.AuthorizeURL(cfg.ServerURL, cfg.ClientID, cfg.RedirectURL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u)
		return nil
	},
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <redirect-url|token>",
	Short: "Store an access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := credential.ParseRedirect(args[0])
		if err != nil {
			return err
		}

		a, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Credentials.Store(cmd.Context(), token); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Token stored")
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenURLCmd)
	tokenCmd.AddCommand(tokenSetCmd)
}

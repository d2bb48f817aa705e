package main

import (
	"fmt"
	"os"

	"github.com/karuta-app/karuta/internal/remote"
	"github.com/karuta-app/karuta/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginToken string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token and sync the account's deck",
	Long: `Login saves an access token for the hosted backend and immediately
syncs. The token is a JWT issued by the auth provider; karuta reads the
account id from its subject claim.

Paste the token at the prompt, or pass it with --token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if a.remote == nil {
			return fmt.Errorf("no backend configured (set KARUTA_REMOTE_URL and KARUTA_REMOTE_KEY)")
		}

		token := loginToken
		if token == "" {
			fmt.Fprint(os.Stderr, "Access token: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
			token = string(raw)
		}

		session, err := remote.ParseSession(token)
		if err != nil {
			return err
		}
		if session.Expired() {
			return fmt.Errorf("token for %s is already expired", session.AccountID)
		}

		if err := remote.SaveSession(a.cfg.SessionPath(), session); err != nil {
			return err
		}
		a.remote.SetSession(session)
		fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), session.AccountID)

		res, err := a.sync.Sync(ctx)
		if err != nil {
			return err
		}
		if res != nil {
			fmt.Printf("Pulled %d vocabulary and %d grammar entries\n", res.VocabPulled, res.GrammarPulled)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored access token",
	Long: `Logout removes the stored session. Local entries stay on device and
remain fully usable offline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if err := remote.ClearSession(a.cfg.SessionPath()); err != nil {
			return err
		}
		if a.remote != nil {
			a.remote.SetSession(nil)
		}
		fmt.Println("Logged out. Local entries are untouched.")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "access token (prompted for when omitted)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PolybrainAI/polybrain-core/internal/credentials"
	"github.com/PolybrainAI/polybrain-core/internal/session"
)

// NewCredentialsCmd manages the TOML credential file the daemon reads.
func NewCredentialsCmd(opts *Options) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage per-user credential bundles",
	}
	cmd.PersistentFlags().StringVar(&path, "file", "", "Credential file (default: credentials.path from config)")

	open := func() (*credentials.FileStore, error) {
		if path == "" {
			cfg, err := loadConfig(opts)
			if err != nil {
				return nil, err
			}
			path = cfg.Credentials.Path
		}
		if path == "" {
			return nil, errors.New("no credential file configured (credentials.path or --file)")
		}
		return credentials.NewFileStore(path)
	}

	var bundle session.Credentials
	put := &cobra.Command{
		Use:   "put <user-token>",
		Short: "Store or replace the bundle for a user token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := open()
			if err != nil {
				return err
			}
			if bundle.ModelAPIKey == "" {
				bundle.ModelAPIKey = os.Getenv("OPENAI_API_KEY")
			}
			if err := fs.Put(cmd.Context(), args[0], bundle); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored credentials for %s in %s\n", args[0], fs.Path())
			return nil
		},
	}
	put.Flags().StringVar(&bundle.ModelAPIKey, "model-key", "", "Model provider API key (default: $OPENAI_API_KEY)")
	put.Flags().StringVar(&bundle.CADAccessKey, "cad-access-key", "", "CAD service access key")
	put.Flags().StringVar(&bundle.CADSecretKey, "cad-secret-key", "", "CAD service secret key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List user tokens with a stored bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := open()
			if err != nil {
				return err
			}
			tokens, err := fs.Tokens(cmd.Context())
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), newStyles().empty.Render("No credentials stored."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tokens, "\n"))
			return nil
		},
	}

	remove := &cobra.Command{
		Use:     "delete <user-token>",
		Aliases: []string{"rm"},
		Short:   "Remove the bundle for a user token",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := open()
			if err != nil {
				return err
			}
			if err := fs.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed credentials for %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(put, list, remove)
	return cmd
}

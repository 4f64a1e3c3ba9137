package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/cookiepool/internal/auth"
	"github.com/and161185/cookiepool/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cpctl",
		Short:         "Manage a cookiepool server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("server", envOr(config.Prefix+"_SERVER", "http://localhost:8080"), "server base URL")
	root.PersistentFlags().String("token", "", "admin bearer token (default: saved token)")
	root.PersistentFlags().Duration("timeout", 60*time.Second, "request timeout")

	root.AddCommand(
		versionCmd(),
		tokenCmd(),
		addCmd(),
		adminGetCmd("status", "Count pooled cookies by validity", http.MethodGet, "/api/cookie-status"),
		adminGetCmd("details", "List pooled cookies without their values", http.MethodGet, "/api/cookie-details"),
		adminGetCmd("select", "Pick a usable cookie the way a query would", http.MethodGet, "/api/cookies/select"),
		adminGetCmd("prune", "Remove every cookie classified invalid", http.MethodPost, "/api/clean-cookies"),
		fansCmd(),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// clientFor builds an API client; admin commands require a token.
func clientFor(cmd *cobra.Command, admin bool) (*apiClient, error) {
	server, _ := cmd.Flags().GetString("server")
	tok, _ := cmd.Flags().GetString("token")
	if tok == "" && admin {
		saved, err := loadToken()
		if err != nil {
			return nil, fmt.Errorf("admin token: %w", err)
		}
		tok = saved
	}
	return newAPIClient(server, tok), nil
}

func requestCtx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	d, _ := cmd.Flags().GetDuration("timeout")
	return context.WithTimeout(cmd.Context(), d)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cpctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cpctl %s (%s)\n", version, buildDate)
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token with the server's signing key",
		Long: `Mint an admin token signed with the same key the server verifies.

The key is read from --key or COOKIEPOOL_ADMIN_JWT_KEY. The token is saved
for later commands unless --print-only is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			printOnly, _ := cmd.Flags().GetBool("print-only")
			if key == "" {
				key = os.Getenv(config.Prefix + "_ADMIN_JWT_KEY")
			}
			if key == "" {
				return errors.New("signing key required (--key or COOKIEPOOL_ADMIN_JWT_KEY)")
			}

			tok, exp, err := auth.NewTokens([]byte(key), ttl).Issue()
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			if !printOnly {
				if err := saveToken(tok, exp); err != nil {
					return fmt.Errorf("save token: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("key", "", "HS256 signing key")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().Bool("print-only", false, "do not save the token")
	return cmd
}

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [cookie]",
		Short: "Add a cookie to the pool",
		Long: `Add a cookie to the pool. The cookie is taken from the argument,
or from --file ("-" reads stdin).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			var value string
			switch {
			case len(args) == 1:
				value = args[0]
			case file != "":
				b, err := readAll(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				value = strings.TrimSpace(string(b))
			default:
				return errors.New("cookie required (argument or --file)")
			}

			c, err := clientFor(cmd, true)
			if err != nil {
				return err
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()

			var out map[string]any
			if err := c.do(ctx, http.MethodPost, "/api/cookies", map[string]string{"cookie": value}, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("file", "", `read the cookie from a file ("-" for stdin)`)
	return cmd
}

func readAll(stdin io.Reader, p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(p)
}

func adminGetCmd(use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFor(cmd, true)
			if err != nil {
				return err
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()

			var out any
			if err := c.do(ctx, method, path, nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func fansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fans <account>",
		Short: "Query the follower count of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cookie, _ := cmd.Flags().GetString("cookie")
			token, _ := cmd.Flags().GetString("auth-token")
			fp, _ := cmd.Flags().GetString("fingerprint")

			c, err := clientFor(cmd, false)
			if err != nil {
				return err
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()

			body := map[string]string{
				"account_name": args[0],
				"cookie":       cookie,
				"token":        token,
				"fingerprint":  fp,
			}
			var out any
			if err := c.do(ctx, http.MethodPost, "/api/fans-query", body, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("cookie", "", "fresh session cookie to pool and use")
	cmd.Flags().String("auth-token", "", "session token query parameter")
	cmd.Flags().String("fingerprint", "", "session fingerprint query parameter")
	return cmd
}

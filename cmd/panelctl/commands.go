package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dfkpanel/panel/ftp"
	"github.com/dfkpanel/panel/nginx"
)

func filesCmd(build func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Browse the panel root",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls [path]",
			Short: "List a directory below the root",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := build()
				if err != nil {
					return err
				}
				rel := ""
				if len(args) == 1 {
					rel = args[0]
				}
				listing, err := a.explorer.List(rel)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), listing)
			},
		},
		&cobra.Command{
			Use:   "cat <path>",
			Short: "Print a file below the root",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := build()
				if err != nil {
					return err
				}
				data, err := a.explorer.ReadFile(args[0])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
	)

	exportCmd := &cobra.Command{
		Use:   "export <path> <archive.tar.gz>",
		Short: "Pack a directory below the root as tar.gz",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			data, err := a.explorer.ExportArchive(args[0])
			if err != nil {
				return err
			}
			return os.WriteFile(args[1], data, 0o600)
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <archive.tar.gz> [dir]",
		Short: "Extract a tar.gz archive below the root",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			dir := ""
			if len(args) == 2 {
				dir = args[1]
			}
			written, err := a.explorer.ImportArchive(dir, data)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), map[string]any{"written": written})
		},
	}

	cmd.AddCommand(exportCmd, importCmd)
	return cmd
}

func nginxCmd(build func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nginx",
		Short: "Manage the nginx configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show-config",
			Short: "Print the main nginx configuration file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := build()
				if err != nil {
					return err
				}
				file, err := a.sites.ReadConfig()
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), file)
			},
		},
		&cobra.Command{
			Use:   "reload",
			Short: "Test the configuration and reload nginx",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := build()
				if err != nil {
					return err
				}
				outcome := a.sites.Reload(cmd.Context())
				return printOutcome(cmd.OutOrStdout(), outcome, outcome)
			},
		},
		&cobra.Command{
			Use:   "sites",
			Short: "List installed site configurations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := build()
				if err != nil {
					return err
				}
				sites, err := a.sites.ListSites()
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), sites)
			},
		},
	)

	cmd.AddCommand(siteCmd(build, "create-site", "Create, install and activate a site", true))
	cmd.AddCommand(siteCmd(build, "render-site", "Print the server block a site would get", false))
	return cmd
}

func siteCmd(build func() (*app, error), use, short string, install bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <domain> <root>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			fpmHost, _ := cmd.Flags().GetString("fpm-host")
			fpmPort, _ := cmd.Flags().GetString("fpm-port")
			bodyLimit, _ := cmd.Flags().GetString("client-max-body")
			req := nginx.SiteRequest{
				Domain:      args[0],
				Root:        args[1],
				BackendHost: fpmHost,
				BackendPort: fpmPort,
				BodyLimit:   bodyLimit,
			}

			if !install {
				text, err := a.sites.RenderSite(req)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			}

			result, err := a.sites.CreateSite(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := printOutcome(cmd.OutOrStdout(), result, result.Outcome); err != nil {
				return err
			}
			if result.Manual != nil {
				_, err = fmt.Fprint(cmd.ErrOrStderr(), result.Manual.String())
			}
			return err
		},
	}
	cmd.Flags().String("fpm-host", "", "FastCGI backend host (default from configuration)")
	cmd.Flags().String("fpm-port", "", "FastCGI backend port (default from configuration)")
	cmd.Flags().String("client-max-body", "", "Request body size limit, e.g. 128m")
	return cmd
}

func ftpCmd(build func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ftp",
		Short: "Manage FTP accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create <username> <folder>",
		Short: "Create an FTP account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			password, err := passwordFlag(cmd)
			if err != nil {
				return err
			}
			account, outcome, err := a.accounts.CreateAccount(cmd.Context(), ftp.AccountRequest{
				Username: args[0],
				HomePath: args[1],
				Password: password,
			})
			if outcome == nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), map[string]any{"account": account, "outcome": outcome}, outcome)
		},
	}
	createCmd.Flags().Bool("password-stdin", false, "Read the password from stdin instead of generating one")

	passwdCmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Set a new password, read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			outcome, err := a.accounts.ChangePassword(cmd.Context(), args[0], password)
			if outcome == nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), outcome, outcome)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List FTP accounts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := build()
				if err != nil {
					return err
				}
				users, err := a.accounts.ListAccounts(cmd.Context())
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), users)
			},
		},
		createCmd,
		passwdCmd,
		&cobra.Command{
			Use:   "delete <username>",
			Short: "Delete an FTP account and its home directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := build()
				if err != nil {
					return err
				}
				outcome, err := a.accounts.DeleteAccount(cmd.Context(), args[0])
				if outcome == nil {
					return err
				}
				return printOutcome(cmd.OutOrStdout(), outcome, outcome)
			},
		},
	)
	return cmd
}

func passwordFlag(cmd *cobra.Command) (string, error) {
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	if !fromStdin {
		return "", nil
	}
	return readPassword(cmd)
}

// readPassword reads the first line of stdin so secrets stay out of argv
func readPassword(cmd *cobra.Command) (string, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

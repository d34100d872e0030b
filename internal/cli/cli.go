// Package cli implements the shopbot command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/m3rciful/shopbot/core/buildinfo"
	corecmd "github.com/m3rciful/shopbot/core/cmd"
	"github.com/m3rciful/shopbot/internal/app"
	"github.com/m3rciful/shopbot/internal/order"
)

const defaultConfigPath = "config.yaml"

// NewRootCommand builds the shopbot command tree.
func NewRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "shopbot",
		Short:         "Telegram storefront with manual payment approval",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or config.yaml)")

	runner := func() corecmd.Options {
		return corecmd.Options{
			ConfigPath:        configPath,
			ConfigEnvVar:      "CONFIG_PATH",
			DefaultConfigPath: defaultConfigPath,
			LoadConfig:        app.LoadConfig,
			Bootstrap:         app.Bootstrap,
		}
	}
	load := func() (*app.Config, error) {
		path, err := runner().ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		return app.Load(path)
	}

	root.AddCommand(newServeCmd(runner))
	root.AddCommand(newMigrateCmd(load))
	root.AddCommand(newOrdersCmd(load))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI until ctx is done.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newServeCmd(runner func() corecmd.Options) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"run"},
		Short:   "Run the bot",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.RunContext(cmd.Context(), runner())
		},
	}
}

func newMigrateCmd(load func() (*app.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	withMigrator := func(cmd *cobra.Command, fn func(*migrator) error) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		mg, err := app.OpenMigrator(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer mg.Close()
		return fn(&migrator{out: cmd.OutOrStdout(), Migrator: mg})
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return m.printVersion()
			})
		},
	}

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return withMigrator(cmd, func(m *migrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return m.printVersion()
			})
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *migrator) error { return m.printVersion() })
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func newOrdersCmd(load func() (*app.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect the order ledger",
	}

	withLedger := func(cmd *cobra.Command, fn func(order.Store, order.Texts) error) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		store, closeFn, err := app.OpenLedger(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(store, order.Texts{Currency: cfg.Orders.Currency})
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List pending orders, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd, func(store order.Store, texts order.Texts) error {
				list, err := store.ListPending(cmd.Context())
				if err != nil {
					return err
				}
				return writeOrders(cmd.OutOrStdout(), list, texts)
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := order.ParseID(strings.TrimPrefix(args[0], "#"))
			if err != nil {
				return err
			}
			return withLedger(cmd, func(store order.Store, texts order.Texts) error {
				o, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writeOrders(cmd.OutOrStdout(), []order.Order{o}, texts)
			})
		},
	}

	cmd.AddCommand(pending, show)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "shopbot "+buildinfo.String())
		},
	}
}

func writeOrders(out io.Writer, list []order.Order, texts order.Texts) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(out, "no orders")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tREQUESTER\tPRODUCT\tPRICE\tCREATED\tDECIDED BY")
	for _, o := range list {
		decidedBy := "-"
		if o.DecidedAt != nil {
			decidedBy = strconv.FormatInt(o.DecidedBy, 10)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			int64(o.ID), o.Status, o.RequesterID, o.Product.Name, texts.Price(o.Product),
			o.CreatedAt.UTC().Format("2006-01-02 15:04"), decidedBy,
		)
	}
	return tw.Flush()
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/voice/session"
)

func exportCmd(g *globals) *cobra.Command {
	var (
		fromStore bool
		list      bool
	)

	cmd := &cobra.Command{
		Use:   "export [session-id]",
		Short: "Print a session's diagnostic export as JSON",
		Long: `Export reads a closed session from the archive directory, or with --store
from the configured session store. --list prints the archived session IDs.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if fromStore {
				store, err := session.New(&cfg.Session, logger)
				if err != nil {
					return err
				}
				defer store.Close()
				return printExport(out, func() (session.Export, error) { return store.Export(ctx, args[0]) })
			}

			archive := cfg.Session.NewArchive()
			if archive == nil {
				return fmt.Errorf("no archive_dir configured; use --store to read the session store")
			}

			if list {
				ids, err := archive.List(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			}
			return printExport(out, func() (session.Export, error) { return archive.Load(ctx, args[0]) })
		},
	}

	cmd.Flags().BoolVar(&fromStore, "store", false, "Read from the session store instead of the archive")
	cmd.Flags().BoolVar(&list, "list", false, "List archived session IDs")
	return cmd
}

func printExport(out io.Writer, load func() (session.Export, error)) error {
	exp, err := load()
	if err != nil {
		return err
	}
	data, err := exp.MarshalIndent()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Chapsvision-dev/ferry/internal/location"
	"github.com/Chapsvision-dev/ferry/internal/transfer"
)

func newCopyCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:     "copy <source> <destination>",
		Aliases: []string{"cp"},
		Short:   "Copy one object between locations",
		Long: `Copy streams the object at <source> to <destination>.

Both arguments are <profile>:<path> or a bare local path. The destination
becomes visible only once every byte has been written; a failed copy leaves
any existing destination object in place.`,
		Example: `  ferry copy backups:db/2024-01-01.snap ./restore.snap
  ferry cp ./report.csv archive:reports/2024/report.csv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := opts.store()
			if err != nil {
				return err
			}
			resolver := location.NewResolver(store)

			src, err := resolver.Parse(ctx, args[0])
			if err != nil {
				return err
			}
			dst, err := resolver.Parse(ctx, args[1])
			if err != nil {
				return err
			}
			log.Debug().
				Str("action", "copy").
				Str("source", src.String()).
				Str("destination", dst.String()).
				Msg("locations resolved")

			res, err := transfer.Run(ctx, src.Operator, src.Path, dst.Operator, dst.Path)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "copied %s from %s to %s\n",
				humanize.Bytes(uint64(res.Bytes)), args[0], args[1])
			return err
		},
	}
}

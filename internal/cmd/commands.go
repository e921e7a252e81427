package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edward-yakop/go-iotc/api/dataset"
)

func newFetchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [dataset...]",
		Short: "Download the source-data files (all of them by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, v, args)
		},
	}
}

func runFetch(cmd *cobra.Command, v *viper.Viper, datasets []string) error {
	a, err := newApp(v, datasets)
	if err != nil {
		return err
	}
	return a.Execute(cmd.Context())
}

func newVerifyCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [dataset...]",
		Short: "Check the downloaded files are complete zip/pdf documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v, args)
			if err != nil {
				return err
			}
			reports, verr := a.Verify()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tSIZE\tBLAKE3\tSTATUS")
			for _, r := range reports {
				status := "ok"
				if !r.OK() {
					status = r.Err.Error()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, humanize.Bytes(uint64(max(r.Size, 0))), r.Digest, status)
			}
			if err = w.Flush(); err != nil {
				return err
			}
			return verr
		},
	}
}

func newPackCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "pack <archive.tar.xz>",
		Short: "Verify the files and snapshot them with a manifest into a tar.xz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v, nil)
			if err != nil {
				return err
			}
			manifest, err := a.Pack(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d file(s)\n", args[0], len(manifest.Files))
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the datasets in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, m := range dataset.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name(), m.Kind(), m.Description())
			}
			return w.Flush()
		},
	}
}

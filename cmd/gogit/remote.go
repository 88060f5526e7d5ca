package main

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mwillock/gogit"
)

func newLsRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls-remote URL",
		Short: "List references advertised by a remote",
		Args:  cobra.ExactArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return lsRemoteCmd(cmd.OutOrStdout(), args[0])
	}
	return cmd
}

func lsRemoteCmd(out io.Writer, url string) error {
	refs, err := gogit.LsRemote(url)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		fmt.Fprintf(out, "%s\t%s\n", ref.ID.String(), ref.Name)
	}
	return nil
}

func newCloneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clone URL [directory]",
		Short: "Clone a repository into a new directory",
		Args:  cobra.RangeArgs(1, 2),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		destination := "."
		if len(args) == 2 {
			destination = args[1]
		}
		return cloneCmd(cmd.OutOrStdout(), args[0], destination)
	}
	return cmd
}

func cloneCmd(out io.Writer, url, destination string) error {
	result, err := gogit.Clone(afero.NewOsFs(), url, destination)
	if err != nil {
		return err
	}
	if result.Warning != nil {
		fmt.Fprintln(out, "warning:", result.Warning)
	}
	fmt.Fprintf(out, "Cloned into %s\n", destination)
	return nil
}

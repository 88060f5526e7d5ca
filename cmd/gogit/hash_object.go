package main

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mwillock/gogit"
)

func newHashObjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-object FILE",
		Short: "Compute the object id of a file and add it to the object store",
		Args:  cobra.ExactArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return hashObjectCmd(cmd.OutOrStdout(), args[0])
	}

	return cmd
}

func hashObjectCmd(out io.Writer, filePath string) error {
	repo, err := gogit.OpenRepository(afero.NewOsFs(), ".")
	if err != nil {
		return err
	}

	id, err := repo.HashObject(filePath)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id.String())
	return nil
}

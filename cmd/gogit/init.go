package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mwillock/gogit"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "init a new git repository",
		Args:  cobra.MaximumNArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		directory := "."
		if len(args) > 0 {
			directory = args[0]
		}
		return initCmd(cmd.OutOrStdout(), directory)
	}

	return cmd
}

func initCmd(out io.Writer, directory string) error {
	pwd, err := os.Getwd()
	if err != nil {
		return err
	}
	if directory == "." {
		directory = pwd
	}

	if _, err := gogit.InitRepository(afero.NewOsFs(), directory); err != nil {
		return err
	}
	fmt.Fprintf(out, "Initialized empty Git repository in %s\n", directory)
	return nil
}

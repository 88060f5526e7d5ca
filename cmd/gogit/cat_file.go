package main

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mwillock/gogit"
	"github.com/mwillock/gogit/githash"
)

func newCatFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat-file OBJECT",
		Short: "Print the content of a repository object",
		Args:  cobra.ExactArgs(1),
	}

	typeOnly := cmd.Flags().BoolP("t", "t", false, "show the object's type instead of its content")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return catFileCmd(cmd.OutOrStdout(), args[0], *typeOnly)
	}
	return cmd
}

func catFileCmd(out io.Writer, objectName string, typeOnly bool) error {
	repo, err := gogit.OpenRepository(afero.NewOsFs(), ".")
	if err != nil {
		return err
	}

	oid, err := githash.NewFromString(objectName)
	if err != nil {
		return fmt.Errorf("not a valid object name %s: %w", objectName, err)
	}

	content, typ, err := repo.CatObject(oid)
	if err != nil {
		return err
	}

	if typeOnly {
		fmt.Fprintln(out, typ.String())
		return nil
	}
	fmt.Fprint(out, string(content))
	return nil
}

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mwillock/gogit"
	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/object"
)

func newWriteTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write-tree",
		Short: "Create a tree object from the working directory",
		Args:  cobra.NoArgs,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return writeTreeCmd(cmd.OutOrStdout())
	}
	return cmd
}

func writeTreeCmd(out io.Writer) error {
	repo, err := gogit.OpenRepository(afero.NewOsFs(), ".")
	if err != nil {
		return err
	}
	id, err := repo.WriteTree()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id.String())
	return nil
}

func newLsTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls-tree TREE",
		Short: "List the contents of a tree object",
		Args:  cobra.ExactArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return lsTreeCmd(cmd.OutOrStdout(), args[0])
	}
	return cmd
}

func lsTreeCmd(out io.Writer, treeName string) error {
	repo, err := gogit.OpenRepository(afero.NewOsFs(), ".")
	if err != nil {
		return err
	}
	id, err := githash.NewFromString(treeName)
	if err != nil {
		return fmt.Errorf("not a valid object name %s: %w", treeName, err)
	}
	names, err := repo.LsTree(id)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func newCommitTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit-tree TREE",
		Short: "Create a new commit object",
		Args:  cobra.ExactArgs(1),
	}

	message := cmd.Flags().StringP("message", "m", "", "commit message")
	parent := cmd.Flags().StringP("parent", "p", "", "id of a parent commit")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return commitTreeCmd(cmd.OutOrStdout(), args[0], *message, *parent)
	}
	return cmd
}

func commitTreeCmd(out io.Writer, treeName, message, parentName string) error {
	repo, err := gogit.OpenRepository(afero.NewOsFs(), ".")
	if err != nil {
		return err
	}

	treeID, err := githash.NewFromString(treeName)
	if err != nil {
		return fmt.Errorf("not a valid object name %s: %w", treeName, err)
	}

	var parents []githash.Oid
	if parentName != "" {
		parentID, err := githash.NewFromString(parentName)
		if err != nil {
			return fmt.Errorf("not a valid object name %s: %w", parentName, err)
		}
		parents = append(parents, parentID)
	}

	author := object.NewSignature("gogit", "gogit@localhost", time.Now())
	id, err := repo.CommitTree(treeID, parents, author, message)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id.String())
	return nil
}

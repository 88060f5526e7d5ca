package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gogit",
		Short:         "git implementation in pure Go",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// porcelain
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newCloneCmd())

	// plumbing
	cmd.AddCommand(newHashObjectCmd())
	cmd.AddCommand(newCatFileCmd())
	cmd.AddCommand(newWriteTreeCmd())
	cmd.AddCommand(newLsTreeCmd())
	cmd.AddCommand(newCommitTreeCmd())
	cmd.AddCommand(newLsRemoteCmd())

	return cmd
}

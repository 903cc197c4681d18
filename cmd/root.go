package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ebbfm",
	Short: "EbbFM is a forum and listening-room service.",
	Long:  `EbbFM 提供乐迷论坛与艺术家试听室，曲目随时间衰减归档，房间状态实时推送。`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"EbbFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动EbbFM服务器",
	Long:  `启动EbbFM的HTTP服务器，提供房间快照、论坛API与WebSocket实时推送`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

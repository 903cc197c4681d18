package cmd

import (
	"fmt"
	"log"

	"EbbFM/config"
	"EbbFM/db"
	"EbbFM/model"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行数据库迁移",
	Long:  `使用GORM AutoMigrate创建或更新房间、曲目与论坛相关的数据表结构。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("无法连接数据库: %v", err)
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrateModels(
			&model.Room{},
			&model.Track{},
			&model.Topic{},
			&model.Reply{},
			&model.Marginalia{},
		); err != nil {
			log.Fatalf("数据库迁移失败: %v", err)
		}

		fmt.Println("数据库迁移完成。")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		pending, err := store.PendingCount(ctx)
		if err != nil {
			return err
		}
		lists, err := store.Lists(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("server:          %s\n", viper.GetString("server"))
		fmt.Printf("backend:         %s\n", viper.GetString("backend"))
		fmt.Printf("mirrored lists:  %d\n", len(lists))
		fmt.Printf("queued actions:  %d\n", pending)

		meta, err := store.LoadMeta(ctx)
		if err != nil {
			return err
		}
		if meta == nil {
			fmt.Println("last sync:       never")
			return nil
		}
		fmt.Printf("last sync:       %s\n", time.UnixMilli(meta.LastSyncAt).Format(time.RFC3339))
		fmt.Printf("device id:       %s\n", meta.DeviceID)
		return nil
	},
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(queueCmd)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List the queued mutations in replay order",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		actions, err := store.Pending(cmd.Context())
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Println("queue is empty")
			return nil
		}

		for i, a := range actions {
			fmt.Printf("%3d. %-16s %s %s\n", i+1, a.Type, a.Method, a.Endpoint)
			fmt.Printf("     queued %s", time.UnixMilli(a.CreatedAt).Format(time.RFC3339))
			if a.RetryCount > 0 {
				fmt.Printf(", %d failed attempt(s), last: %s", a.RetryCount, a.LastError)
			}
			fmt.Println()
		}
		return nil
	},
}

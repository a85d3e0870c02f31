package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	cartsync "github.com/c0deZ3R0/go-cart-sync"
)

func init() {
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay the queued mutations against the server",
	Long:  "Run one drain pass: every queued mutation is sent to the server in order and resolved by outcome.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		provider := cartsync.NewSignalProvider()
		engine := cartsync.NewEngine(store, store, newAPIClient(), provider, nil)
		defer engine.Close()

		engine.Subscribe(func(ev cartsync.Event) {
			switch ev.Type {
			case cartsync.EventActionComplete:
				fmt.Printf("  ok   %s %s\n", ev.ActionType, ev.ActionID)
			case cartsync.EventActionError:
				fmt.Printf("  drop %s %s: %v\n", ev.ActionType, ev.ActionID, ev.Err)
			}
		})

		before, err := engine.PendingCount(cmd.Context())
		if err != nil {
			return err
		}
		if before == 0 {
			fmt.Println("queue is empty, nothing to sync")
			return nil
		}
		fmt.Printf("syncing %d queued action(s)\n", before)

		if err := engine.Drain(context.Background()); err != nil {
			return err
		}

		after, err := engine.PendingCount(cmd.Context())
		if err != nil {
			return err
		}
		if after > 0 {
			fmt.Printf("%d action(s) still queued, run sync again later\n", after)
		} else {
			fmt.Println("queue drained")
		}
		return nil
	},
}

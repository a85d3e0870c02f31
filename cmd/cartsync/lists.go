package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cartsync "github.com/c0deZ3R0/go-cart-sync"
)

var listsRefresh bool

func init() {
	listsCmd.Flags().BoolVar(&listsRefresh, "refresh", false, "fetch from the server before printing")
	rootCmd.AddCommand(listsCmd)
}

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Show the mirrored grocery lists",
	Long:  "Print the lists from the local mirror. With --refresh, fetch the authoritative state from the server first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		client := newAPIClient()
		provider := cartsync.NewSignalProvider()
		engine := cartsync.NewEngine(store, store, client, provider, nil)
		defer engine.Close()
		reconciler := cartsync.NewReconciler(cartsync.NewCache(), store, engine, client, client, provider, nil)

		if listsRefresh {
			if err := reconciler.RefreshAll(ctx); err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
		} else if err := reconciler.LoadFromMirror(ctx); err != nil {
			return err
		}

		lists := reconciler.Cache().Lists()
		if len(lists) == 0 {
			fmt.Println("no lists mirrored yet, try --refresh")
			return nil
		}
		for _, l := range lists {
			fmt.Printf("%-26s  %s  (%d/%d checked, %.2f)\n", l.ID, l.Name, l.CheckedItems, l.TotalItems, l.TotalPrice)
			for _, it := range reconciler.Cache().Items(l.ID) {
				mark := " "
				if it.Checked {
					mark = "x"
				}
				fmt.Printf("  [%s] %dx %s\n", mark, it.Quantity, it.Name)
			}
		}
		return nil
	},
}

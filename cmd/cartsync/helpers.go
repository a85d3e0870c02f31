package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	cartsync "github.com/c0deZ3R0/go-cart-sync"
	"github.com/c0deZ3R0/go-cart-sync/storage/bolt"
	"github.com/c0deZ3R0/go-cart-sync/storage/sqlite"
	"github.com/c0deZ3R0/go-cart-sync/transport/httpapi"
)

// openStore opens the configured backend. The caller owns the returned
// store and must close it.
func openStore() (cartsync.Store, error) {
	path := viper.GetString("db")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir := filepath.Join(home, ".cartsync")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("cannot create data directory: %w", err)
		}
		path = filepath.Join(dir, "cartsync.db")
	}

	switch backend := viper.GetString("backend"); backend {
	case "bolt":
		return bolt.New(path)
	case "sqlite":
		return sqlite.NewWithDataSource("file:" + path)
	default:
		return nil, fmt.Errorf("unknown backend %q (want bolt or sqlite)", backend)
	}
}

// newAPIClient builds the transport from the configured server URL.
func newAPIClient() *httpapi.Client {
	var opts []httpapi.ClientOption
	if token := viper.GetString("auth-token"); token != "" {
		opts = append(opts, httpapi.WithAuthToken(token))
	}
	return httpapi.NewClient(viper.GetString("server"), opts...)
}

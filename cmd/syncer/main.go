// Package main is the entry point for the catalog sync service.
package main

import (
	"os"

	"github.com/mkoziy/numbers/syncer/cmd/syncer/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

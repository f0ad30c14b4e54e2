// Package main is the fileops binary: a CLI for cancellable batch file
// operations and, through "fileops serve", the HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/JakeFAU/fileops/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

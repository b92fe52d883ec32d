// Package main provides the offliner CLI entrypoint.
package main

import (
	"context"
	"os"

	"charm.land/fang/v2"

	"github.com/lukemcguire/offliner/cmd"
)

func main() {
	if err := fang.Execute(
		context.Background(),
		cmd.NewRootCmd(),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}

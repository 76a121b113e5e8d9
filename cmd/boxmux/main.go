package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/progrium/boxmux/cmd/boxmux/cli"
)

func main() {
	root := &cli.Command{
		Usage: "boxmux",
		Long:  `boxmux multiplexes box sessions over authenticated connections`,
	}

	root.AddCommand(serveCmd)
	root.AddCommand(echoCmd)
	root.AddCommand(hashpwCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cli.Execute(ctx, root, os.Args[1:]); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

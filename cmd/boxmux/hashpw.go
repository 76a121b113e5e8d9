package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/progrium/boxmux/auth"
	"github.com/progrium/boxmux/cmd/boxmux/cli"
)

var hashpwCmd = &cli.Command{
	Usage: "hashpw [password]",
	Short: "print the bcrypt hash of a password",
	Long: `Print the bcrypt hash of a password for the password_hash field of a
configured user. Without an argument the password is read from stdin.`,
	Args: cli.MaxArgs(1),
	Run: func(ctx context.Context, args []string) {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				fatal(err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		hash, err := auth.HashPassword(password)
		fatal(err)
		fmt.Println(hash)
	},
}

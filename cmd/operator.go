package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/gfrancoarq/franco-orrego/internal/store"
)

// OperatorCommand returns the console account management command.
func OperatorCommand() *cli.Command {
	return &cli.Command{
		Name:  "operator",
		Usage: "Manage console operator accounts",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create an operator account",
				ArgsUsage: "USERNAME PASSWORD",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return fmt.Errorf("usage: operator add USERNAME PASSWORD")
					}
					username, password := c.Args().Get(0), c.Args().Get(1)

					hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
					if err != nil {
						return fmt.Errorf("hash password: %w", err)
					}

					ctx := context.Background()
					pool, err := store.NewPool(ctx)
					if err != nil {
						return err
					}
					defer pool.Close()
					if err := store.EnsureSchema(ctx, pool); err != nil {
						return err
					}

					op, err := store.NewOperators(pool).Create(ctx, username, string(hash))
					if err != nil {
						return err
					}
					fmt.Printf("Created operator %s (id %d)\n", op.Username, op.ID)
					return nil
				},
			},
		},
	}
}

package cli

import (
	"fmt"

	"github.com/radlabel/radlabel/pkg/auth"
	"github.com/urfave/cli/v2"
)

var (
	tokenFlag = &cli.StringFlag{
		Name:  "token",
		Usage: "Mirror access token (prompted for when omitted)",
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Manage the dataset mirror access token",
		Subcommands: []*cli.Command{
			{
				Name:   "set",
				Usage:  "Save a mirror access token",
				Action: cmdAuthSet,
				Flags: []cli.Flag{
					tokenFlag,
				},
			},
			{
				Name:   "clear",
				Usage:  "Remove the saved token",
				Action: cmdAuthClear,
			},
		},
	}
)

func cmdAuthSet(c *cli.Context) error {
	token := c.String(tokenFlag.Name)
	if token == "" {
		fmt.Print("Paste the mirror access token:\n> ")
		if _, err := fmt.Scanln(&token); err != nil {
			return fmt.Errorf("reading user input: %w", err)
		}
	}

	cfg := getConfig(c)

	if err := auth.NewStore(cfg.HomeDir).Save(token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Println("Token saved.")
	return nil
}

func cmdAuthClear(c *cli.Context) error {
	cfg := getConfig(c)

	if err := auth.NewStore(cfg.HomeDir).Clear(); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}

	fmt.Println("Token cleared.")
	return nil
}

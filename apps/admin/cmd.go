package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/trezcool/masomo-chat/core/device"
)

var (
	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("this command needs a SQL database")
)

type commandLine struct {
	db        *sql.DB // nil when running in memory
	deviceSvc *device.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, fix)")
	fmt.Println("  cleanuptokens -user ID | -all - deactivate duplicate device tokens, keeping the latest per platform")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	cleanupCmd := flag.NewFlagSet("cleanuptokens", flag.ExitOnError)
	cleanupUser := cleanupCmd.String("user", "", "The ID of the user whose tokens are cleaned up.")
	cleanupAll := cleanupCmd.Bool("all", false, "Clean up the tokens of every user holding duplicates.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.db == nil {
			return errNoSQL
		}
		return cli.migrate(args[2:])
	case "cleanuptokens":
		if err := cleanupCmd.Parse(args[2:]); err != nil {
			return err
		}
		if (*cleanupUser == "") == !*cleanupAll {
			cleanupCmd.Usage()
			return errHelp
		}
		n, err := cli.cleanupTokens(context.Background(), *cleanupUser, *cleanupAll)
		if err != nil {
			return err
		}
		fmt.Printf("%d device token(s) deactivated\n", n)
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}

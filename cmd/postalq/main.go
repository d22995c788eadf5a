/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command postalq inspects and nudges a message-dequeue engine's queue
// directory, the administration-utility role cmd/maddyctl plays for the
// rest of the server.
package main

import (
	"fmt"
	"os"

	"github.com/postalcore/postal/auth"
	"github.com/postalcore/postal/framework/log"
	"github.com/postalcore/postal/queue"
	"github.com/urfave/cli/v2"
)

func openPassTable(c *cli.Context) (*auth.PassTable, error) {
	return auth.LoadPassTableFile(c.String("pass-table"))
}

func openEngine(c *cli.Context) (*queue.Engine, error) {
	dir := c.String("queue-dir")
	maxMemory := c.Int64("max-memory")
	return queue.New(dir, maxMemory, log.Logger{Name: "postalq"})
}

func main() {
	app := cli.NewApp()
	app.Name = "postalq"
	app.Usage = "postal message-queue inspection utility"
	app.ExitErrHandler = func(c *cli.Context, err error) {
		cli.HandleExitCoder(err)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			cli.OsExiter(1)
		}
	}
	app.Flags = []cli.Flag{
		&cli.PathFlag{
			Name:  "queue-dir",
			Usage: "queue directory (containing mess/, save/, token.ipc)",
			Value: "/var/spool/postal/queue",
		},
		&cli.Int64Flag{
			Name:  "max-memory",
			Usage: "working-set memory cap in bytes, same units queue.New takes",
			Value: 64 * 1024 * 1024,
		},
		&cli.PathFlag{
			Name:  "pass-table",
			Usage: "bcrypt user:hash credential file used by the creds subcommands",
			Value: "/etc/postal/passwd",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:  "status",
			Usage: "print a snapshot of the queue's working-set metrics",
			Action: func(c *cli.Context) error {
				eng, err := openEngine(c)
				if err != nil {
					return err
				}
				m := eng.Snapshot()
				fmt.Printf("holding:         %d\n", m.Holding)
				fmt.Printf("processing:      %d\n", m.Processing)
				fmt.Printf("dequeued (delta): %d\n", m.DequeuedSinceLastRead)
				fmt.Printf("allocated blocks: %d\n", m.AllocatedBlocks)
				return nil
			},
		},
		{
			Name:      "notify",
			Usage:     "notify the engine a spill file is ready to load",
			ArgsUsage: "<flush-id>",
			Action: func(c *cli.Context) error {
				if c.Args().Len() != 1 {
					return cli.Exit("notify requires exactly one flush-id argument", 1)
				}
				var id uint32
				if _, err := fmt.Sscanf(c.Args().First(), "%d", &id); err != nil {
					return cli.Exit(fmt.Sprintf("invalid flush-id: %v", err), 1)
				}
				eng, err := openEngine(c)
				if err != nil {
					return err
				}
				return eng.Notify(id)
			},
		},
		{
			Name:  "creds",
			Usage: "local bcrypt credential management, the postald counterpart of maddyctl's creds group",
			Subcommands: []*cli.Command{
				{
					Name:      "create",
					ArgsUsage: "<username> <password>",
					Action: func(c *cli.Context) error {
						if c.Args().Len() != 2 {
							return cli.Exit("creds create requires <username> <password>", 1)
						}
						tbl, err := openPassTable(c)
						if err != nil {
							return err
						}
						if err := tbl.CreateUser(c.Args().Get(0), c.Args().Get(1)); err != nil {
							return err
						}
						return tbl.Save()
					},
				},
				{
					Name:      "password",
					ArgsUsage: "<username> <password>",
					Action: func(c *cli.Context) error {
						if c.Args().Len() != 2 {
							return cli.Exit("creds password requires <username> <password>", 1)
						}
						tbl, err := openPassTable(c)
						if err != nil {
							return err
						}
						if err := tbl.SetUserPassword(c.Args().Get(0), c.Args().Get(1)); err != nil {
							return err
						}
						return tbl.Save()
					},
				},
				{
					Name:      "remove",
					ArgsUsage: "<username>",
					Action: func(c *cli.Context) error {
						if c.Args().Len() != 1 {
							return cli.Exit("creds remove requires <username>", 1)
						}
						tbl, err := openPassTable(c)
						if err != nil {
							return err
						}
						if err := tbl.DeleteUser(c.Args().First()); err != nil {
							return err
						}
						return tbl.Save()
					},
				},
				{
					Name: "list",
					Action: func(c *cli.Context) error {
						tbl, err := openPassTable(c)
						if err != nil {
							return err
						}
						users, err := tbl.ListUsers()
						if err != nil {
							return err
						}
						for _, u := range users {
							fmt.Println(u)
						}
						return nil
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

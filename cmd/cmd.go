// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for the local database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// usersCommand manages the local user mirror.
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Local user mirror operations",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Import users from a CSV file (email,name,first_name,last_name,handle,legacy_id,verified_at,created_at)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the CSV file",
						Required: true,
					},
				},
				Action: r.UsersImport,
			},
			{
				Name:  "list",
				Usage: "List local users",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "verified-only",
						Usage: "Only list verified users",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of users to list",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print JSON output",
						Value: true,
					},
				},
				Action: r.UsersList,
			},
		},
	}
}

// senderCommand handles Sender.net subscriber synchronization.
func senderCommand(r *Runner) *cli.Command {
	force := func() cli.Flag {
		return &cli.BoolFlag{
			Name:  "force",
			Usage: "Run even when the environment disables the integration",
		}
	}

	return &cli.Command{
		Name:    "sender",
		Aliases: []string{"sendernet"},
		Usage:   "Sender.net subscriber synchronization",
		Commands: []*cli.Command{
			{
				Name:  "groups",
				Usage: "Create the required groups and cache their IDs",
				Flags: []cli.Flag{
					force(),
					&cli.BoolFlag{
						Name:  "clear",
						Usage: "Clear cached group IDs before resolving",
					},
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Check cached group IDs against Sender.net and re-resolve deleted groups",
					},
				},
				Action: r.SenderGroups,
			},
			{
				Name:  "export",
				Usage: "Export local users to Sender.net, updating subscribers that already exist",
				Flags: []cli.Flag{
					force(),
					&cli.BoolFlag{
						Name:  "verified-only",
						Usage: "Only export verified users",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Show what would be exported without exporting",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Limit the number of users to export",
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Start from a specific offset",
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Do not ask for confirmation",
					},
				},
				Action: r.SenderExport,
			},
			{
				Name:  "fix",
				Usage: "Re-apply names, ACTIVE status and tags to every subscriber",
				Flags: []cli.Flag{
					force(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Users processed per chunk",
						Value: 100,
					},
				},
				Action: r.SenderFix,
			},
			{
				Name:  "csv",
				Usage: "Generate a CSV file for manual bulk import",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: sendernet_export_<timestamp>.csv)",
					},
				},
				Action: r.SenderCSV,
			},
			{
				Name:  "verify",
				Usage: "Mark a user's subscriber as verified",
				Flags: []cli.Flag{
					force(),
					&cli.StringFlag{
						Name:     "email",
						Usage:    "Email of the local user",
						Required: true,
					},
				},
				Action: r.SenderVerify,
			},
			{
				Name:  "delete",
				Usage: "Delete a user's subscriber",
				Flags: []cli.Flag{
					force(),
					&cli.StringFlag{
						Name:     "email",
						Usage:    "Email of the local user",
						Required: true,
					},
				},
				Action: r.SenderDelete,
			},
			{
				Name:  "lookup",
				Usage: "Look a subscriber up by email or ID",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "identifier",
					},
				},
				Flags: []cli.Flag{
					force(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SenderLookup,
			},
		},
	}
}

// cacheCommand manages the group ID cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the group ID cache",
		Commands: []*cli.Command{
			{
				Name:   "clear",
				Usage:  "Forget cached group IDs",
				Action: r.CacheClear,
			},
			{
				Name:   "purge",
				Usage:  "Remove expired entries from the database cache",
				Action: r.CachePurge,
			},
		},
	}
}

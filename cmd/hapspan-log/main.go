// Command hapspan-log views and analyzes protocol capture files written by
// hapspan-device with --protocol-log.
//
// Usage:
//
//	hapspan-log <command> [flags] <file.hlog>
//
// Commands:
//
//	view     View events in human-readable format
//	export   Export events as JSON lines or CSV
//	filter   Copy matching events into a new capture file
//	stats    Show statistics about the capture
//
// Examples:
//
//	# View the write batches that touched accessory 2
//	hapspan-log view --category update --aid 2 device.hlog
//
//	# Export one slot's traffic to CSV
//	hapspan-log export --format csv --slot 1 device.hlog
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/hapspan/hapspan-go/cmd/hapspan-log/commands"
)

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "conn-id", Usage: "filter by connection ID"},
		&cli.StringFlag{Name: "controller", Usage: "filter by controller ID"},
		&cli.IntFlag{Name: "slot", Value: -1, Usage: "filter by connection slot"},
		&cli.IntFlag{Name: "aid", Value: -1, Usage: "keep write batches addressing this accessory"},
		&cli.StringFlag{Name: "time-start", Usage: "filter by start time (RFC3339)"},
		&cli.StringFlag{Name: "time-end", Usage: "filter by end time (RFC3339)"},
		&cli.StringFlag{Name: "layer", Usage: "filter by layer (transport, http, accessory)"},
		&cli.StringFlag{Name: "direction", Usage: "filter by direction (in, out)"},
		&cli.StringFlag{Name: "category", Usage: "filter by category (message, update, state, error)"},
	}
}

func filterOptions(c *cli.Context) commands.FilterOptions {
	return commands.FilterOptions{
		ConnID:       c.String("conn-id"),
		ControllerID: c.String("controller"),
		Slot:         c.Int("slot"),
		AID:          c.Int("aid"),
		TimeStart:    c.String("time-start"),
		TimeEnd:      c.String("time-end"),
		Layer:        c.String("layer"),
		Direction:    c.String("direction"),
		Category:     c.String("category"),
	}
}

func capturePath(c *cli.Context) (string, error) {
	if c.NArg() < 1 {
		return "", cli.Exit("log file path required", 1)
	}
	return c.Args().First(), nil
}

func main() {
	app := &cli.App{
		Name:      "hapspan-log",
		Usage:     "HAP protocol capture analyzer",
		ArgsUsage: "<file.hlog>",
		Commands: []*cli.Command{
			{
				Name:      "view",
				Usage:     "view events in human-readable format",
				ArgsUsage: "<file.hlog>",
				Flags:     filterFlags(),
				Action: func(c *cli.Context) error {
					path, err := capturePath(c)
					if err != nil {
						return err
					}
					filter, err := filterOptions(c).Build()
					if err != nil {
						return err
					}
					return commands.RunView(path, filter, os.Stdout)
				},
			},
			{
				Name:      "export",
				Usage:     "export events as JSON lines or CSV",
				ArgsUsage: "<file.hlog>",
				Flags: append(filterFlags(),
					&cli.StringFlag{Name: "format", Value: "jsonl", Usage: "output format (jsonl, csv)"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (default: stdout)"},
				),
				Action: func(c *cli.Context) error {
					path, err := capturePath(c)
					if err != nil {
						return err
					}
					filter, err := filterOptions(c).Build()
					if err != nil {
						return err
					}

					w := os.Stdout
					if out := c.String("output"); out != "" {
						f, err := os.Create(out)
						if err != nil {
							return fmt.Errorf("failed to create output file: %w", err)
						}
						defer f.Close()
						w = f
					}
					return commands.RunExport(path, c.String("format"), filter, w)
				},
			},
			{
				Name:      "filter",
				Usage:     "copy matching events into a new capture file",
				ArgsUsage: "<file.hlog>",
				Flags: append(filterFlags(),
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "output file"},
				),
				Action: func(c *cli.Context) error {
					path, err := capturePath(c)
					if err != nil {
						return err
					}
					filter, err := filterOptions(c).Build()
					if err != nil {
						return err
					}
					n, err := commands.RunFilter(path, c.String("output"), filter)
					if err != nil {
						return err
					}
					fmt.Printf("Filtered %d events to %s\n", n, c.String("output"))
					return nil
				},
			},
			{
				Name:      "stats",
				Usage:     "show statistics about the capture",
				ArgsUsage: "<file.hlog>",
				Action: func(c *cli.Context) error {
					path, err := capturePath(c)
					if err != nil {
						return err
					}
					return commands.RunStats(path, os.Stdout)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command seatagctl is the host-side management tool for the tracker
// firmware (spec.md §4.3.2's command taxonomy): status, configuration
// get/set/dump/restore, sensor-log download, and firmware upload/apply,
// all driven over the same framed protocol the device's transport-bridge
// speaks. --simulate runs against an in-process stand-in instead of a
// real device, the way a developer would exercise seatagd without
// hardware.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func connect(ctx *cli.Context) (*client, error) {
	if ctx.Bool("simulate") {
		addr, stop, err := startSimulated()
		if err != nil {
			return nil, err
		}
		c, err := dialClient(addr)
		if err != nil {
			stop()
			return nil, err
		}
		// stop is deliberately leaked: --simulate is a short-lived
		// one-shot CLI invocation, not a long-running server, and the
		// in-memory device and listener die with the process anyway.
		return c, nil
	}
	return dialClient(ctx.String("addr"))
}

func main() {
	app := &cli.App{
		Name:  "seatagctl",
		Usage: "manage a tracker device over its transport bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "ws://127.0.0.1:7326/bridge", Usage: "websocket address of the device's transport bridge"},
			&cli.BoolFlag{Name: "simulate", Usage: "run against an in-process simulated device instead of dialing --addr"},
		},
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "print firmware version and battery status",
				Action: statusCommand,
			},
			{
				Name:  "cfg",
				Usage: "read or write device configuration",
				Subcommands: []*cli.Command{
					{Name: "get", Usage: "read a single tag", ArgsUsage: "TAG", Action: cfgGetCommand},
					{Name: "set", Usage: "write a single tag", ArgsUsage: "TAG VALUE", Action: cfgSetCommand},
					{Name: "dump", Usage: "read every configured tag", Action: cfgDumpCommand},
					{Name: "restore", Usage: "reload configuration from persisted flash", Action: cfgRestoreCommand},
				},
			},
			{
				Name:  "log",
				Usage: "download the sensor log",
				Subcommands: []*cli.Command{
					{
						Name:  "read",
						Usage: "download a byte range of the sensor log",
						Flags: []cli.Flag{
							&cli.Uint64Flag{Name: "start", Usage: "starting byte offset"},
							&cli.Uint64Flag{Name: "len", Usage: "number of bytes to download", Required: true},
							&cli.BoolFlag{Name: "csv", Usage: "write decoded records as CSV instead of a text dump"},
							&cli.StringFlag{Name: "out", Usage: "CSV output path (default stdout)"},
						},
						Action: logReadCommand,
					},
				},
			},
			{
				Name:  "fw",
				Usage: "upload and apply firmware images",
				Subcommands: []*cli.Command{
					{
						Name:      "send",
						Usage:     "upload a firmware image",
						ArgsUsage: "FILE",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "kind", Value: "stm32", Usage: "image kind: stm32 or ble"},
						},
						Action: fwSendCommand,
					},
					{
						Name:      "apply",
						Usage:     "apply a previously uploaded image",
						ArgsUsage: "stm32|ble",
						Action:    fwApplyCommand,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "seatagctl:", err)
		os.Exit(1)
	}
}

// Package cli contains the sensorsync command line application.
package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/edaniels/golog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"go.viam.com/sensorsync/config"
	"go.viam.com/sensorsync/service"
	"go.viam.com/sensorsync/timesync"
	"go.viam.com/sensorsync/web/server"
)

const (
	flagConfig  = "config"
	flagEnvFile = "env-file"
	flagDebug   = "debug"
	flagWorkers = "workers"
	flagAddr    = "addr"
)

// NewApp returns the sensorsync application writing its output to out.
func NewApp(out io.Writer) *cli.App {
	var logger golog.Logger

	loadService := func(c *cli.Context) (*service.Service, *config.Config, error) {
		cfg, err := config.Load(c.String(flagConfig), c.String(flagEnvFile))
		if err != nil {
			return nil, nil, err
		}
		if c.IsSet(flagWorkers) {
			cfg.Workers = c.Int(flagWorkers)
			if err := cfg.Validate("flags"); err != nil {
				return nil, nil, err
			}
		}
		return service.New(cfg, logger), cfg, nil
	}

	return &cli.App{
		Name:      "sensorsync",
		Usage:     "synchronize multi-sensor recordings and overlay lidar scans on camera frames",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagEnvFile,
				Value: ".env",
				Usage: "dotenv `FILE` with SENSORSYNC_ overrides",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = golog.NewDebugLogger("cli")
			} else {
				logger = zap.NewNop().Sugar()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "sync",
				Usage:     "decode and synchronize the recording in a folder",
				ArgsUsage: "<root>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagWorkers,
						Usage: "decoder pool size, 0 picks one per CPU",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("sync takes exactly one data folder")
					}
					svc, _, err := loadService(c)
					if err != nil {
						return err
					}
					res, err := svc.Synchronize(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					printSyncSummary(c.App.Writer, res)
					return nil
				},
			},
			{
				Name:      "project",
				Usage:     "overlay the lidar scan of a frame onto its camera image",
				ArgsUsage: "<frame>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("project takes exactly one frame number")
					}
					svc, _, err := loadService(c)
					if err != nil {
						return err
					}
					out, err := svc.ProjectFrame(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Visualization saved to %s\n", out)
					return nil
				},
			},
			{
				Name:  "serve",
				Usage: "serve the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagAddr,
						Usage: "listen on `ADDR` instead of bind_address",
					},
				},
				Action: func(c *cli.Context) error {
					svc, cfg, err := loadService(c)
					if err != nil {
						return err
					}
					addr := cfg.BindAddress
					if c.IsSet(flagAddr) {
						addr = c.String(flagAddr)
					}
					return server.New(svc, logger).Serve(c.Context, addr)
				},
			},
		},
	}
}

func printSyncSummary(w io.Writer, res *service.SyncResult) {
	fmt.Fprintf(w, "Reference sensor: %s (mean gap %.6fs)\n", res.Reference, res.ReferenceGap)
	sensors := make([]string, 0, len(res.Strategies))
	for sensor := range res.Strategies {
		sensors = append(sensors, string(sensor))
	}
	sort.Strings(sensors)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Sensor", "Alignment"})
	t.AppendRow(table.Row{res.Reference, "reference"})
	for _, sensor := range sensors {
		t.AppendRow(table.Row{sensor, res.Strategies[timesync.Sensor(sensor)]})
	}
	t.Render()
	fmt.Fprintf(w, "Wrote %d records to %s\n", len(res.Records), res.OutputPath)
}

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/mat"

	"compass-ng/internal/compass"
	"compass-ng/internal/config"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "compass-ng: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:      "compass-ng",
		Usage:     "magnetic heading from accelerometer and magnetometer samples",
		Writer:    stdout,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the heading daemon",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to YAML config (defaults apply when empty)", EnvVars: []string{"COMPASS_NG_CONFIG"}},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c.String("config"))
					if err != nil {
						return err
					}
					ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
					defer cancel()
					return runDaemon(ctx, cfg)
				},
			},
			{
				Name:  "estimate",
				Usage: "fuse one gravity/magnetic pair and print the azimuth",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "gravity", Usage: "gravity vector x,y,z in m/s²", Required: true},
					&cli.StringFlag{Name: "magnetic", Usage: "magnetic vector x,y,z in µT", Required: true},
				},
				Action: func(c *cli.Context) error {
					g, err := parseVector(c.String("gravity"))
					if err != nil {
						return fmt.Errorf("--gravity: %w", err)
					}
					m, err := parseVector(c.String("magnetic"))
					if err != nil {
						return fmt.Errorf("--magnetic: %w", err)
					}
					return printEstimate(c.App.Writer, g, m)
				},
			},
			{
				Name:      "summarize",
				Usage:     "summarize a recorded sample log",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("summarize: expected exactly one path")
					}
					return printLogSummary(c.App.Writer, c.Args().First())
				},
			},
		},
	}
}

func loadConfig(path string) (config.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

// parseVector accepts "x,y,z" with optional surrounding whitespace.
func parseVector(s string) (compass.Vector3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return compass.Vector3{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return compass.Vector3{}, fmt.Errorf("component %d: %w", i, err)
		}
		v[i] = f
	}
	return compass.Vector3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func printEstimate(w io.Writer, gravity, magnetic compass.Vector3) error {
	var est compass.Estimator
	r, err := est.RotationMatrix(gravity, magnetic)
	if err != nil {
		return err
	}
	az, err := est.Estimate(gravity, magnetic)
	if err != nil {
		return err
	}
	reading := compass.NewReading(float64(az), true)
	fmt.Fprintf(w, "azimuth: %.2f\n", float64(az))
	fmt.Fprintf(w, "display: %s\n", reading.Text)
	fmt.Fprintf(w, "rotation:\n%v\n", mat.Formatted(r, mat.Prefix(""), mat.Squeeze()))
	return nil
}

//go:build linux

package options

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/goombaio/namegenerator"
	"github.com/inhies/go-bytesize"
	"github.com/urfave/cli/v3"

	"github.com/sakamoro/alice-container/cgroup"
	"github.com/sakamoro/alice-container/container"
	"github.com/sakamoro/alice-container/logger"
	"github.com/sakamoro/alice-container/version"
)

// BindMount is a host-to-container directory bind requested on the
// command line, applied by the caller once the container's rootfs and
// mount namespace are in place.
type BindMount struct {
	Host string
	Dest string
	RO   bool
}

// RunOptions is everything needed to create and start a container, plus
// the logging knobs the CLI layer applies before touching the runtime.
type RunOptions struct {
	ID     string
	Config container.Config

	LogLevel  slog.Level
	LogFormat logger.LogFormat
}

/**
 * Builds a RunOptions struct from CLI context.
 * @param c the CLI context
 * @return the built RunOptions and error if any
 */
func buildOptionsFromCLI(c *cli.Command) (*RunOptions, error) {
	o := &RunOptions{
		ID: uuid.New().String(),
		Config: container.Config{
			Hostname:    c.String("hostname"),
			Nameservers: c.StringSlice("dns"),
		},
	}

	logLevel, err := parseLogLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	o.LogLevel = logLevel

	logFormat, err := parseLogFormat(c.String("log-format"))
	if err != nil {
		return nil, err
	}
	o.LogFormat = logFormat

	rootfs, err := parseRootfs(c.String("fs"))
	if err != nil {
		return nil, err
	}
	o.Config.Rootfs = rootfs

	cpus := float64(c.Float32("cpus"))
	if cpus <= 0 {
		return nil, fmt.Errorf("bad --cpus %v: must be positive", cpus)
	}
	o.Config.CPUPeriodUs = cgroup.DefaultPeriodUs
	o.Config.CPULimitUs = uint64(cpus * float64(cgroup.DefaultPeriodUs))

	mem, err := bytesize.Parse(c.String("memory"))
	if err != nil {
		return nil, fmt.Errorf("bad --memory %q: %v", c.String("memory"), err)
	}
	o.Config.MemoryLimit = uint64(mem)

	if io, err := parseIO(c); err != nil {
		return nil, err
	} else {
		o.Config.IO = io
	}

	// Read-only bind mounts.
	for _, m := range c.StringSlice("mount-ro") {
		ms, err := parseMount(m, true)
		if err != nil {
			return nil, err
		}
		o.Config.Mounts = append(o.Config.Mounts, container.Mount(ms))
	}

	// Read-write bind mounts.
	for _, m := range c.StringSlice("mount-rw") {
		ms, err := parseMount(m, false)
		if err != nil {
			return nil, err
		}
		o.Config.Mounts = append(o.Config.Mounts, container.Mount(ms))
	}

	var userEnv []EnvVar
	for _, e := range c.StringSlice("env") {
		ev, err := ParseEnv(e)
		if err != nil {
			return nil, err
		}
		userEnv = append(userEnv, ev)
	}
	o.Config.Env = MergeEnv(defaultEnvironment, userEnv)

	return o, nil
}

// parseIO assembles an IoConfig from --io-device/--io-rbps/--io-wbps, or
// returns nil when --io-device is absent.
func parseIO(c *cli.Command) (*cgroup.IoConfig, error) {
	dev := c.String("io-device")
	if dev == "" {
		return nil, nil
	}
	io := cgroup.NewIoConfig(dev)
	if v := c.String("io-rbps"); v != "" {
		bs, err := bytesize.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("bad --io-rbps %q: %v", v, err)
		}
		io.Rbps = uint64(bs)
	}
	if v := c.String("io-wbps"); v != "" {
		bs, err := bytesize.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("bad --io-wbps %q: %v", v, err)
		}
		io.Wbps = uint64(bs)
	}
	return &io, nil
}

// parseRootfs resolves --fs into a concrete directory: "tmpfs" allocates a
// private scratch directory, anything else must already be a directory.
func parseRootfs(s string) (string, error) {
	if s == "tmpfs" || s == "" {
		dir, err := os.MkdirTemp("", "alice-container-rootfs-*")
		if err != nil {
			return "", fmt.Errorf("bad --fs tmpfs: %v", err)
		}
		return dir, nil
	}
	fi, err := os.Lstat(s)
	if err != nil {
		return "", fmt.Errorf("bad --fs %q: %v", s, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("bad --fs %q: not a directory", s)
	}
	return s, nil
}

/**
 * Parses CLI flags into a RunOptions struct.
 * @param ctx the context the CLI command runs under
 * @param args the full argument list, program name first
 * @return a RunOptions instance (nil when no command ran, e.g. --help) and error if any
 */
func ParseCli(ctx context.Context, args []string) (*RunOptions, error) {
	var resultOpts *RunOptions
	var generator = namegenerator.NewNameGenerator(
		time.Now().UTC().UnixNano(),
	)

	cmd := &cli.Command{
		Name:    "alice-container",
		Usage:   "A minimal Linux container runtime.",
		Version: version.Version(),
		Flags: []cli.Flag{

			// Filesystem
			&cli.StringFlag{
				Name:  "fs",
				Value: "tmpfs",
				Usage: "Root filesystem (tmpfs|<directory path>)",
			},

			// Read-only bind mounts
			&cli.StringSliceFlag{
				Name:  "mount-ro",
				Usage: "Read-only bind mounts from the host (`HOST:CONTAINER`)",
			},

			// Read-write bind mounts
			&cli.StringSliceFlag{
				Name:  "mount-rw",
				Usage: "Read-write bind mounts from the host (`HOST:CONTAINER`)",
			},

			// Environment variables
			&cli.StringSliceFlag{
				Name:  "env",
				Usage: "Sets an environment variable as `KEY=VALUE` in the container",
			},

			// DNS nameservers
			&cli.StringSliceFlag{
				Name:  "dns",
				Usage: "A DNS nameserver to use in the container",
			},

			// Hostname
			&cli.StringFlag{
				Name:  "hostname",
				Value: generator.Generate(),
				Usage: "Sets the hostname of the container",
			},

			// CPUs
			&cli.Float32Flag{
				Name:  "cpus",
				Value: 1.0,
				Usage: "CPU cores to allocate to the container",
			},

			// Memory
			&cli.StringFlag{
				Name:  "memory",
				Value: "512MB",
				Usage: "Memory to allocate to the container (e.g., 512MB, 2GB)",
			},

			// Block IO throttling.
			&cli.StringFlag{
				Name:  "io-device",
				Usage: "Block device to throttle, as `MAJ:MIN` (e.g. 8:0)",
			},
			&cli.StringFlag{
				Name:  "io-rbps",
				Usage: "Read bandwidth limit for --io-device (e.g. 10MB)",
			},
			&cli.StringFlag{
				Name:  "io-wbps",
				Usage: "Write bandwidth limit for --io-device (e.g. 10MB)",
			},

			// Verbosity
			&cli.StringFlag{
				Name:  "log-level",
				Value: "error",
				Usage: "Log verbosity (info|warn|error)",
			},

			// Log format.
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format (text|json)",
			},
		},

		// Parse arguments into a RunOptions struct.
		Action: func(ctx context.Context, c *cli.Command) error {
			opts, err := buildOptionsFromCLI(c)
			if err != nil {
				return err
			}

			// Command to execute in the container.
			argv := c.Args().Slice()
			if len(argv) == 0 {
				return fmt.Errorf("missing command; usage: alice-container [options] -- command [args...]")
			}

			opts.Config.Command = argv
			resultOpts = opts
			return nil
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		// display help if no arguments were provided
		_ = cli.ShowAppHelp(cmd)
		return nil, err
	}

	return resultOpts, nil
}

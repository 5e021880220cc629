// Command bantubox runs commands in lightweight Linux containers:
// overlay root filesystem, isolated namespaces, cgroup limits.
//
//	sudo bantubox run -i ubuntu /bin/bash
//	sudo bantubox run -i alpine /bin/echo 'Hello, World!'
package main

import (
	"fmt"
	"os"
	"strings"

	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/aropet/bantubox/container"
	"github.com/aropet/bantubox/errdefs"
)

const (
	defaultImageDir     = "/bantubox/images"
	defaultContainerDir = "/bantubox/containers"
	defaultRegistryPath = "/bantubox/registry.db"
	defaultImage        = "ubuntu"
)

func main() {
	app := cli.NewApp()
	app.Name = "bantubox"
	app.Usage = "a simple docker-like tool for running linux containers"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "image-dir",
			Usage:  "directory holding base image trees",
			Value:  defaultImageDir,
			EnvVar: "BANTUBOX_IMAGE_DIR",
		},
		cli.StringFlag{
			Name:   "container-dir",
			Usage:  "directory holding per-container layers",
			Value:  defaultContainerDir,
			EnvVar: "BANTUBOX_CONTAINER_DIR",
		},
		cli.StringFlag{
			Name:   "registry",
			Usage:  "container registry database file",
			Value:  defaultRegistryPath,
			EnvVar: "BANTUBOX_REGISTRY",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		if ctx.GlobalBool("debug") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	}
	app.Commands = []cli.Command{
		runCommand,
		stopCommand,
		listCommand,
		deleteCommand,
		initCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func supervisor(ctx *cli.Context) *container.Supervisor {
	return &container.Supervisor{
		ImageDir:     ctx.GlobalString("image-dir"),
		ContainerDir: ctx.GlobalString("container-dir"),
		RegistryPath: ctx.GlobalString("registry"),
	}
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "run a command in a new container",
	ArgsUsage: "<command> [args...]",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "image, i",
			Usage: "base image name",
			Value: defaultImage,
		},
		cli.Uint64Flag{
			Name:  "cpu-shares",
			Usage: "CPU shares (relative weight)",
		},
		cli.StringFlag{
			Name:  "memory",
			Usage: "memory limit, with optional unit suffix (512m, 1g)",
		},
		cli.StringFlag{
			Name:  "memory-swap",
			Usage: "total memory plus swap limit",
		},
	},
	SkipArgReorder: true,
	Action: func(ctx *cli.Context) error {
		if !ctx.Args().Present() {
			return cli.NewExitError("run: no command given", errdefs.SetupExitCode)
		}
		spec := container.RunSpec{
			Image:     ctx.String("image"),
			Command:   []string(ctx.Args()),
			CPUShares: ctx.Uint64("cpu-shares"),
		}
		var err error
		if spec.MemoryLimit, err = parseSize(ctx.String("memory")); err != nil {
			return cli.NewExitError(fmt.Sprintf("run: invalid memory limit: %v", err), errdefs.SetupExitCode)
		}
		if spec.MemorySwapLimit, err = parseSize(ctx.String("memory-swap")); err != nil {
			return cli.NewExitError(fmt.Sprintf("run: invalid memory-swap limit: %v", err), errdefs.SetupExitCode)
		}

		exit, err := supervisor(ctx).Run(spec)
		if err != nil {
			logrus.Error(err)
		}
		if exit != 0 {
			return cli.NewExitError("", exit)
		}
		return nil
	},
}

var stopCommand = cli.Command{
	Name:      "stop",
	Usage:     "stop one or more running containers",
	ArgsUsage: "<id> [id...]",
	Action: func(ctx *cli.Context) error {
		if !ctx.Args().Present() {
			return cli.NewExitError("stop: no container id given", 1)
		}
		s := supervisor(ctx)
		for _, id := range ctx.Args() {
			if err := s.Stop(id); err != nil {
				return cli.NewExitError(fmt.Sprintf("stop %s: %v", id, err), 1)
			}
		}
		return nil
	},
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "list known containers",
	Action: func(ctx *cli.Context) error {
		recs, err := supervisor(ctx).List()
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if len(recs) == 0 {
			fmt.Println("No containers available.")
			return nil
		}
		fmt.Printf("%-36s %-12s %-8s %-15s %s\n", "ID", "IMAGE", "PID", "STATE", "COMMAND")
		for _, r := range recs {
			fmt.Printf("%-36s %-12s %-8d %-15s %s\n",
				r.ID, r.Image, r.Pid, r.State, strings.Join(r.Command, " "))
		}
		return nil
	},
}

var deleteCommand = cli.Command{
	Name:      "delete",
	Usage:     "delete the remains of stopped containers",
	ArgsUsage: "<id> [id...]",
	Action: func(ctx *cli.Context) error {
		if !ctx.Args().Present() {
			return cli.NewExitError("delete: no container id given", 1)
		}
		s := supervisor(ctx)
		for _, id := range ctx.Args() {
			if err := s.Delete(id); err != nil {
				return cli.NewExitError(fmt.Sprintf("delete %s: %v", id, err), 1)
			}
		}
		return nil
	},
}

// initCommand is the internal re-exec entry point running inside the
// container's fresh namespaces. Not for direct use.
var initCommand = cli.Command{
	Name:   "init",
	Hidden: true,
	Action: func(ctx *cli.Context) error {
		if err := container.Init(); err != nil {
			logrus.Error(err)
			os.Exit(errdefs.ExitCode(err))
		}
		return nil
	},
}

func parseSize(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return uint64(n), nil
}

func fatal(err error) {
	if ec, ok := err.(cli.ExitCoder); ok {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(ec.ExitCode())
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(errdefs.ExitCode(err))
}

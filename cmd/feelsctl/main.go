// Package main provides feelsctl, the start/stop/status surface of the feels daemon.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/feels/internal/config"
	"github.com/thebtf/feels/pkg/daemonctl"
)

const usage = `usage: feelsctl [flags] <start|stop|status|restart>

flags:
`

func main() {
	binary := flag.String("binary", defaultBinary(), "Path to the feels-daemon binary")
	debug := flag.Bool("debug", false, "Start the daemon with debug logging")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Get()

	opts := daemonctl.Options{
		Binary:  *binary,
		PIDPath: cfg.PIDPath,
		LogPath: filepath.Join(config.DataDir(), "daemon.log"),
		Host:    cfg.Host,
		Port:    cfg.HTTPPort,
	}
	if *debug {
		opts.Args = append(opts.Args, "--debug")
	}

	if err := runCommand(flag.Arg(0), opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand(cmd string, opts daemonctl.Options) error {
	switch cmd {
	case "start":
		return start(opts)
	case "stop":
		return stop(opts)
	case "status":
		return status(opts)
	case "restart":
		if err := stop(opts); err != nil {
			return err
		}
		if err := waitForPortRelease(opts, daemonctl.StopTimeout); err != nil {
			return err
		}
		return start(opts)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func start(opts daemonctl.Options) error {
	pid, err := daemonctl.Start(opts)
	if errors.Is(err, daemonctl.ErrAlreadyRunning) {
		fmt.Println("feels daemon already running")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("feels daemon started (pid %d, http port %d)\n", pid, opts.Port)
	return nil
}

func stop(opts daemonctl.Options) error {
	err := daemonctl.Stop(opts.PIDPath)
	if errors.Is(err, daemonctl.ErrNotRunning) {
		fmt.Println("feels daemon not running")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("feels daemon stopped")
	return nil
}

func status(opts daemonctl.Options) error {
	st := daemonctl.Status(opts.PIDPath, opts.Host, opts.Port)
	switch {
	case st.Running:
		fmt.Printf("feels daemon running (pid %d, http port %d)\n", st.PID, st.Port)
	case st.PortInUse:
		fmt.Printf("feels daemon not tracked, but port %d is in use\n", st.Port)
	default:
		fmt.Println("feels daemon not running")
	}
	return nil
}

func waitForPortRelease(opts daemonctl.Options, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for daemonctl.IsPortInUse(opts.Host, opts.Port) {
		if time.Now().After(deadline) {
			return fmt.Errorf("port %d still in use after stop", opts.Port)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// defaultBinary looks for feels-daemon next to this executable, then on PATH.
func defaultBinary() string {
	exe, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "feels-daemon")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "feels-daemon"
}

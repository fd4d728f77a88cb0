package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/ucan/internal/admin"
	"github.com/danmuck/ucan/internal/bus"
	"github.com/danmuck/ucan/internal/config"
	"github.com/danmuck/ucan/internal/logging"
	"github.com/danmuck/ucan/internal/observability"
	"github.com/danmuck/ucan/internal/service"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ucanctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "run":
		return runNode(args)
	case "init":
		return initNode(args)
	case "validate":
		return validateNode(args)
	default:
		return fmt.Errorf("unknown command %q (run|init|validate)", cmd)
	}
}

func runNode(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfgPath := fs.String("config", "cmd/ucanctl/config.toml", "ucanctl service config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadServiceConfig(*cfgPath)
	if err != nil {
		return err
	}
	node, err := config.LoadNode(cfg.NodeConfig)
	if err != nil {
		return err
	}
	observability.InitLogger("ucanctl", node.Info.Role.String(), node.Info.SelfID)

	svc := service.New(cfg.Runtime, node, opener(cfg.Interface))
	if err := svc.Bootstrap(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adminErr := make(chan error, 1)
	if cfg.AdminAddr != "" {
		srv := admin.New(svc, cfg.CorsOrigins)
		go func() {
			adminErr <- srv.Serve(ctx, cfg.AdminAddr)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- svc.Serve(ctx)
	}()

	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			stop()
			return errors.Join(err, <-serveErr)
		}
		return <-serveErr
	}
}

// opener picks the adapter for iface. The loopback bus is process-local and
// only useful for exercising a node without hardware.
func opener(iface string) service.Opener {
	if iface == loopbackInterface {
		lb := bus.NewLoopback()
		return func() (bus.Adapter, error) {
			return lb.Open(), nil
		}
	}
	return func() (bus.Adapter, error) {
		return bus.OpenSocketCAN(iface)
	}
}

func initNode(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	role := fs.String("role", "master", "node template: master|client")
	output := fs.String("output", "cmd/ucanctl/node.toml", "output path for the node file")
	force := fs.Bool("force", false, "overwrite an existing node file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.WriteTemplate(*output, *role, *force); err != nil {
		return err
	}
	log.Info().Str("role", *role).Str("path", *output).Msg("node template written")
	return nil
}

func validateNode(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	input := fs.String("node", "cmd/ucanctl/node.toml", "node file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	node, err := config.LoadNode(*input)
	if err != nil {
		return err
	}
	log.Info().
		Str("path", *input).
		Str("name", node.Name).
		Stringer("role", node.Info.Role).
		Int("tx_frames", len(node.Tx)).
		Int("rx_frames", len(node.Rx)).
		Msg("node file valid")
	return nil
}

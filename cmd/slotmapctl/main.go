package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"slotmap/config"
	"slotmap/core/events"
	"slotmap/core/types"
	"slotmap/crypto"
	"slotmap/native/slotmap"
	"slotmap/observability/logging"
	telemetry "slotmap/observability/otel"
)

const (
	serviceName   = "slotmapctl"
	defaultConfig = "./slotmap.toml"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "deploy":
		err = runDeploy(os.Args[2:], os.Stdout)
	case "derive":
		err = runDerive(os.Args[2:], os.Stdout)
	case "set":
		err = runSet(os.Args[2:], os.Stdout)
	case "inspect":
		err = runInspect(os.Args[2:], os.Stdout)
	case "serve":
		err = runServe(os.Args[2:])
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `Usage: slotmapctl <command> [flags]

Commands:
  deploy    initialise the contract in the configured store
  derive    print the slot for a (car, account, key) claim
  set       submit a Set call
  inspect   show the entry stored at a slot
  serve     run the HTTP host`)
}

// setup loads the configuration and logger shared by every command.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.Setup(serviceName, cfg.Environment, logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runDeploy(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the slotmap config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := setup(*configPath)
	if err != nil {
		return err
	}
	n, err := openNode(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()
	fmt.Fprintf(out, "contract %s deployed as %s (%s backend)\n", cfg.ContractName, n.cid, cfg.Backend)
	return nil
}

func runDerive(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	root := fs.Bool("root", false, "Claim the key in the root namespace")
	account := fs.String("account", "", "Owner account (bech32 or field element)")
	key := fs.String("key", "", "Key to claim")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := claim(*root, *account, *key, "", false).params()
	if err != nil {
		return err
	}
	slot := slotmap.DeriveSlot(p.Car, p.Account, p.Key)
	fmt.Fprintf(out, "slot  %s\n", slot)
	if !p.Account.IsZero() {
		encoded, err := crypto.EncodeAccount(p.Account)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "owner %s\n", encoded)
	}
	return nil
}

func runSet(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the slotmap config file")
	root := fs.Bool("root", false, "Claim the key in the root namespace")
	account := fs.String("account", "", "Owner account (bech32 or field element)")
	key := fs.String("key", "", "Key to claim")
	value := fs.String("value", "", "Value to store")
	lock := fs.Bool("lock", false, "Make the entry permanent")
	proof := fs.String("proof", "", "Hex encoded proof")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := claim(*root, *account, *key, *value, *lock)
	p, err := req.params()
	if err != nil {
		return err
	}
	rawProof, err := hex.DecodeString(strings.TrimPrefix(*proof, "0x"))
	if err != nil {
		return fmt.Errorf("proof: %w", err)
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		return err
	}
	recorder := &events.Recorder{}
	n, err := openNode(context.Background(), cfg, logger, recorder)
	if err != nil {
		return err
	}
	defer n.Close()

	receipt, slot, err := n.set(context.Background(), p, rawProof)
	if err != nil {
		if receipt != nil {
			return fmt.Errorf("%s: %w", receipt.Failure, err)
		}
		return err
	}
	fmt.Fprintf(out, "tx %s committed slot %s\n", receipt.ID, slot)
	fmt.Fprintf(out, "events %s\n", strings.Join(recorder.Types(), " "))
	return nil
}

func runInspect(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the slotmap config file")
	slotArg := fs.String("slot", "", "Slot to read; derived from the claim flags when empty")
	root := fs.Bool("root", false, "Claim the key in the root namespace")
	account := fs.String("account", "", "Owner account (bech32 or field element)")
	key := fs.String("key", "", "Key of the claim")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var slot crypto.Element
	if *slotArg != "" {
		var err error
		if slot, err = crypto.ParseElement(*slotArg); err != nil {
			return fmt.Errorf("slot: %w", err)
		}
	} else {
		p, err := claim(*root, *account, *key, "", false).params()
		if err != nil {
			return err
		}
		slot = slotmap.DeriveSlot(p.Car, p.Account, p.Key)
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		return err
	}
	n, err := openNode(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	entry, ok, err := n.entry(slot)
	if err != nil {
		return err
	}
	resp := entryResponse{Slot: slot.String(), Found: ok}
	if ok {
		resp.Lock = entry.Lock
		resp.Value = entry.Value.String()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the slotmap config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := setup(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		ContractName: cfg.ContractName,
		ContractID:   types.ContractIDFromName(cfg.ContractName).String(),
		Backend:      string(cfg.Backend),
		Endpoint:     cfg.Telemetry.Endpoint,
		Insecure:     cfg.Telemetry.Insecure,
		Headers:      telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:      cfg.Telemetry.Metrics,
		Traces:       cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	n, err := openNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           newRouter(n, limiter),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("slotmap host listening", "addr", cfg.ListenAddress, "contract", n.cid.String())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// claim builds a request from command line flags.
func claim(root bool, account, key, value string, lock bool) setRequest {
	car := "0"
	if root {
		car = "1"
	}
	return setRequest{Car: car, Account: account, Key: key, Value: value, Lock: lock}
}

// Command uvctl drives the s390x ultravisor device. It can query the
// capabilities of device and firmware, request an attestation measurement,
// and manage the retrievable secrets of a secure execution guest.
//
// Usage:
//
//	uvctl info
//	uvctl list
//	uvctl add <request-file>
//	uvctl lock
//	uvctl attest <arcb-file>
//
// Configuration comes from the environment: UVCTL_DEVICE overrides the
// device path, UVCTL_FORMAT selects text, json, or cbor output, and
// UVCTL_VERBOSE enables debug logging.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/fxamacker/cbor/v2"

	"github.com/sertonix/go-uvdevice"
	"github.com/sertonix/go-uvdevice/protocol/uvio"
)

type config struct {
	Device         string `env:"UVCTL_DEVICE" envDefault:"/dev/uv"`
	Format         string `env:"UVCTL_FORMAT" envDefault:"text"`
	Verbose        bool   `env:"UVCTL_VERBOSE"`
	UserData       string `env:"UVCTL_USER_DATA"`
	MeasurementLen uint32 `env:"UVCTL_MEASUREMENT_LEN" envDefault:"32768"`
	AdditionalLen  uint32 `env:"UVCTL_ADDITIONAL_LEN" envDefault:"0"`
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		fatal(err)
	}
	if cfg.Verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	if len(os.Args) < 2 {
		fatal(fmt.Errorf("usage: uvctl <info|list|add|lock|attest> [args]"))
	}
	if err := run(cfg, os.Args[1], os.Args[2:]); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "uvctl:", err)
	os.Exit(1)
}

func run(cfg config, command string, args []string) error {
	if !uvdevice.IsProtVirtGuest() {
		slog.Warn("not running in a secure execution guest, ultravisor calls will fail")
	}

	dev, err := uvdevice.OpenPath(cfg.Device)
	if err != nil {
		return err
	}
	defer dev.Close()

	switch command {
	case "info":
		return runInfo(cfg, dev)
	case "list":
		return runList(cfg, dev)
	case "add":
		if len(args) != 1 {
			return fmt.Errorf("usage: uvctl add <request-file>")
		}
		return runAdd(dev, args[0])
	case "lock":
		return dev.LockSecrets()
	case "attest":
		if len(args) != 1 {
			return fmt.Errorf("usage: uvctl attest <arcb-file>")
		}
		return runAttest(cfg, dev, args[0])
	}
	return fmt.Errorf("unknown command %q", command)
}

func runInfo(cfg config, dev *uvdevice.Device) error {
	info, err := dev.Info()
	if err != nil {
		return err
	}
	if cfg.Format != "text" {
		return emit(cfg, info)
	}

	names := []struct {
		nr   uint8
		name string
	}{
		{uvio.InfoNr, "info"},
		{uvio.AttestationNr, "attestation"},
		{uvio.AddSecretNr, "add-secret"},
		{uvio.ListSecretsNr, "list-secrets"},
		{uvio.LockSecretsNr, "lock-secrets"},
	}
	for _, n := range names {
		fmt.Printf("%-14s device:%-5t firmware:%-5t usable:%t\n",
			n.name, info.SuppUvioCmds.Has(n.nr), info.SuppUvCmds.Has(n.nr), info.Supports(n.nr))
	}
	return nil
}

func runList(cfg config, dev *uvdevice.Device) error {
	if max, err := uvdevice.MaxRetrievableSecrets(); err == nil {
		slog.Debug("secret store limit", "max_retr_secrets", max)
	}

	list, err := dev.ListSecrets()
	if err != nil {
		return err
	}
	if cfg.Format != "text" {
		return emit(cfg, list)
	}

	fmt.Printf("%d of %d secret(s):\n", list.Stored, list.Total)
	for _, e := range list.Entries {
		fmt.Printf("%5d  %-14s %4d  %s\n", e.Index, e.Type, e.Len, e.ID)
	}
	return nil
}

func runAdd(dev *uvdevice.Device, path string) error {
	request, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return dev.AddSecret(request)
}

func runAttest(cfg config, dev *uvdevice.Device, arcbPath string) error {
	arcb, err := os.ReadFile(arcbPath)
	if err != nil {
		return err
	}

	result, err := dev.Attest(arcb, []byte(cfg.UserData), cfg.MeasurementLen, cfg.AdditionalLen)
	if err != nil {
		return err
	}
	if cfg.Format != "text" {
		return emit(cfg, result)
	}

	fmt.Printf("config uid:      %s\n", hex.EncodeToString(result.ConfigUID[:]))
	fmt.Printf("measurement:     %s\n", hex.EncodeToString(result.Measurement))
	if len(result.AdditionalData) > 0 {
		fmt.Printf("additional data: %s\n", hex.EncodeToString(result.AdditionalData))
	}
	return nil
}

// emit writes v to stdout in the configured format. cbor output is binary
// and meant to be piped.
func emit(cfg config, v any) error {
	switch cfg.Format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "cbor":
		b, err := cbor.Marshal(v)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(b)
		return err
	}
	return fmt.Errorf("unknown output format %q", cfg.Format)
}

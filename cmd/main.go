package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retis-org/drdump/pkg/btf"
	"github.com/retis-org/drdump/pkg/dropreason"
	"github.com/retis-org/drdump/pkg/script"
)

// Bad invocations exit with 2, blob and schema failures with 1. An unknown
// raw value is valid output, not a failure.
var errUsage = errors.New("usage error")

var opt struct {
	btfPath    string
	resolve    string
	format     string
	verbose    bool
	subsystems bool
}

var cmd = &cobra.Command{
	Use:                   "drdump [flags]",
	Long:                  "Dumps and translates skb drop reasons from kernel BTF",
	DisableFlagsInUseLine: true,
	SilenceUsage:          true,
	SilenceErrors:         true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
	Version: "0.1.0",
}

func init() {
	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&opt.btfPath, "btf", "b", "/sys/kernel/btf/vmlinux", "BTF file path")
	cmd.Flags().StringVarP(&opt.resolve, "resolve", "r", "", "resolve given value into a drop reason enum value")
	cmd.Flags().StringVarP(&opt.format, "format", "f", "raw", "output format: raw, bpftrace or stap")
	cmd.Flags().BoolVarP(&opt.verbose, "verbose", "v", false, "display sub-system for drop reasons")
	cmd.Flags().BoolVar(&opt.subsystems, "subsystems", false, "list drop reason sub-systems instead of reasons")
}

func run() error {
	// Usage problems are reported before the blob is even opened.
	var resolve uint32
	resolveMode := opt.resolve != ""
	if resolveMode {
		v, err := strconv.ParseUint(opt.resolve, 0, 32)
		if err != nil {
			return fmt.Errorf("%w: invalid raw value %q", errUsage, opt.resolve)
		}
		resolve = uint32(v)
	}

	switch opt.format {
	case "raw", script.Bpftrace, script.Stap:
	default:
		return fmt.Errorf("%w: unsupported format %q", errUsage, opt.format)
	}

	graph, err := btf.LoadFile(opt.btfPath)
	if err != nil {
		return err
	}

	table, err := dropreason.Load(graph)
	if err != nil {
		return err
	}

	switch {
	case resolveMode:
		fmt.Println(table.Resolve(resolve).Format(opt.verbose))
	case opt.subsystems:
		dropreason.DumpSubsystems(os.Stdout, table)
	case opt.format == "raw":
		return dropreason.Dump(os.Stdout, table, opt.verbose)
	default:
		return script.Emit(os.Stdout, opt.format, table)
	}

	return nil
}

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error(err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

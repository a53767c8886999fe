package flag

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CLI is the vmsr command line. Global flags override the config file.
type CLI struct {
	Config   string `help:"config file" default:"${config}" type:"path"`
	Device   string `help:"register device path, one %d for the cpu"`
	Sysfs    string `help:"cpu topology directory"`
	Model    string `help:"cpu model to use instead of detecting it, e.g. 06_2D"`
	Snapshot string `help:"snapshot file shared by save and restore-previous"`
	LogLevel string `help:"debug, info, warn or error" name:"log-level"`
	CPUs     string `help:"cpus the lifecycle commands act on, in cpulist format (default: process affinity)" name:"cpus"`

	Read            ReadCMD            `cmd:"" help:"read a register"`
	Write           WriteCMD           `cmd:"" help:"write a register or run a virtual command"`
	Save            SaveCMD            `cmd:"" help:"save current values (job prolog)"`
	RestorePrevious RestorePreviousCMD `cmd:"" name:"restore-previous" help:"restore saved values"`
	RestoreSane     RestoreSaneCMD     `cmd:"" name:"restore-sane" help:"restore sane values (job epilog)"`
	Probe           ProbeCMD           `cmd:"" help:"print topology and the values of every readable register"`
	Catalog         CatalogCMD         `cmd:"" help:"print the register whitelist"`

	out io.Writer
}

type ReadCMD struct {
	Register string `arg:"" help:"register name"`
	CPU      int    `short:"c" default:"-1" help:"requesting cpu (default: first cpu of the process affinity)"`
}

type WriteCMD struct {
	Register string `arg:"" help:"register or virtual command name"`
	Value    string `arg:"" optional:"" help:"value, any Go integer literal"`
	CPU      int    `short:"c" default:"-1" help:"requesting cpu (default: first cpu of the process affinity)"`
}

type SaveCMD struct{}

type RestorePreviousCMD struct{}

type RestoreSaneCMD struct{}

type ProbeCMD struct {
	CPU int `short:"c" default:"-1" help:"cpu to read from (default: first cpu of the process affinity)"`
}

type CatalogCMD struct {
	Tuples bool `help:"print the exported (address, perm, save, exit, granularity) table"`
}

// ParseValue parses a 64-bit register value written as a Go integer
// literal: decimal, 0x hex, 0o octal or 0b binary, with optional
// underscores.
func ParseValue(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value: %w", strconv.ErrSyntax)
	}

	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}

	return v, nil
}

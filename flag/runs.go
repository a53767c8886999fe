package flag

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/bobuhiro11/vmsr/catalog"
	"github.com/bobuhiro11/vmsr/config"
	"github.com/bobuhiro11/vmsr/lifecycle"
	"github.com/bobuhiro11/vmsr/node"
	"github.com/bobuhiro11/vmsr/probe"
	"github.com/bobuhiro11/vmsr/topology"
)

var errLifecycleFailures = errors.New("some registers failed")

func Parse() error {
	c := CLI{out: os.Stdout}

	programName := "vmsr"
	programDesc := "vmsr mediates job access to whitelisted model-specific registers"

	ctx := kong.Parse(&c,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.Vars{"config": config.DefaultPath},
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	return ctx.Run(&c)
}

// settings merges the config file and the global flags and installs the
// logger.
func (c *CLI) settings() (config.Config, error) {
	cfg, err := config.Load(c.Config, c.Config == config.DefaultPath)
	if err != nil {
		return cfg, err
	}

	cfg.Override(config.Config{
		Device:   c.Device,
		Sysfs:    c.Sysfs,
		Model:    c.Model,
		Snapshot: c.Snapshot,
		LogLevel: c.LogLevel,
	})

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return cfg, nil
}

func (c *CLI) jobCPUs() ([]int, error) {
	if c.CPUs != "" {
		return topology.ParseCPUList(c.CPUs)
	}

	return topology.Affinity()
}

func (c *CLI) node() (*node.Node, error) {
	cfg, err := c.settings()
	if err != nil {
		return nil, err
	}

	cpus, err := c.jobCPUs()
	if err != nil {
		return nil, err
	}

	n := node.New(cfg)

	if err := n.Init(cpus); err != nil {
		n.Close()

		return nil, err
	}

	return n, nil
}

// requester picks the cpu a read or write is issued from.
func (c *CLI) requester(cpu int) (int, error) {
	if cpu >= 0 {
		return cpu, nil
	}

	cpus, err := c.jobCPUs()
	if err != nil {
		return 0, err
	}

	return cpus[0], nil
}

func (c *CLI) writer() io.Writer {
	if c.out == nil {
		return os.Stdout
	}

	return c.out
}

func (r *ReadCMD) Run(c *CLI) error {
	cpu, err := c.requester(r.CPU)
	if err != nil {
		return err
	}

	n, err := c.node()
	if err != nil {
		return err
	}
	defer n.Close()

	v, err := n.Read(r.Register, cpu)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.writer(), "%#x\n", v)

	return nil
}

func (w *WriteCMD) Run(c *CLI) error {
	cpu, err := c.requester(w.CPU)
	if err != nil {
		return err
	}

	var value uint64

	if w.Value != "" {
		if value, err = ParseValue(w.Value); err != nil {
			return err
		}
	}

	n, err := c.node()
	if err != nil {
		return err
	}
	defer n.Close()

	d, err := n.Catalog().Lookup(w.Register)
	if err != nil {
		return err
	}

	if d.IsVirtual() {
		return c.command(n, w.Register)
	}

	if w.Value == "" {
		return fmt.Errorf("%s: missing value", w.Register)
	}

	return n.Write(w.Register, cpu, value)
}

func (c *CLI) command(n *node.Node, name string) error {
	res, err := n.Command(name)

	if res.Command != "" {
		report(c.writer(), res)
	}

	if err != nil {
		return err
	}

	if !res.OK() {
		return fmt.Errorf("%s: %d of %d: %w", res.Command, len(res.Failures), res.Attempted, errLifecycleFailures)
	}

	return nil
}

func report(w io.Writer, res lifecycle.Result) {
	fmt.Fprintf(w, "%s: %d registers, %d failed\n", res.Command, res.Attempted, len(res.Failures))

	for _, f := range res.Failures {
		fmt.Fprintf(w, "  %s: %v\n", f.Name, f.Err)
	}
}

func (c *CLI) runCommand(name string) error {
	n, err := c.node()
	if err != nil {
		return err
	}
	defer n.Close()

	return c.command(n, name)
}

func (s *SaveCMD) Run(c *CLI) error {
	return c.runCommand(catalog.SaveCurrentValues)
}

func (r *RestorePreviousCMD) Run(c *CLI) error {
	return c.runCommand(catalog.RestorePreviousValues)
}

func (r *RestoreSaneCMD) Run(c *CLI) error {
	return c.runCommand(catalog.RestoreSaneValues)
}

func (p *ProbeCMD) Run(c *CLI) error {
	cpu, err := c.requester(p.CPU)
	if err != nil {
		return err
	}

	n, err := c.node()
	if err != nil {
		return err
	}
	defer n.Close()

	w := c.writer()

	if err := probe.Topology(w, n.Topo); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nsnapshot: %s\n\n", n.Controller().State())

	return probe.Values(w, n.Mediator, cpu)
}

func (k *CatalogCMD) Run(c *CLI) error {
	n, err := c.node()
	if err != nil {
		return err
	}
	defer n.Close()

	if k.Tuples {
		return probe.Tuples(c.writer(), n.Catalog())
	}

	return probe.Catalog(c.writer(), n.Catalog())
}

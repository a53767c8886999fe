// Package node assembles the mediator for one compute node: it picks the
// catalog for the local CPU, reads the topology, opens the register
// devices and keeps the job snapshot on disk between the scheduler's
// prolog and epilog.
package node

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bobuhiro11/vmsr/catalog"
	"github.com/bobuhiro11/vmsr/config"
	"github.com/bobuhiro11/vmsr/cpuid"
	"github.com/bobuhiro11/vmsr/lifecycle"
	"github.com/bobuhiro11/vmsr/mediator"
	"github.com/bobuhiro11/vmsr/msr"
	"github.com/bobuhiro11/vmsr/topology"
)

var errNoMSR = errors.New("cpu does not support rdmsr/wrmsr")

// Node is the mediator of one node process.
type Node struct {
	*mediator.Mediator
	config.Config

	// Dev and Topo are opened from Config by Init when nil.
	Dev  msr.Device
	Topo *topology.Topology

	ctl *lifecycle.Controller
}

// New returns an uninitialized Node.
func New(c config.Config) *Node {
	return &Node{Config: c}
}

// Init builds the catalog, topology and controller. cpus are the CPUs the
// lifecycle commands act on; empty means every online CPU. Any failure
// here means the node must not serve requests.
func (n *Node) Init(cpus []int) error {
	cat, err := n.catalog()
	if err != nil {
		return err
	}

	if n.Topo == nil {
		if n.Topo, err = topology.Load(os.DirFS(n.Sysfs)); err != nil {
			return err
		}
	}

	if n.Dev == nil {
		n.Dev = msr.Open(n.Device)
	}

	n.Mediator = mediator.New(cat, n.Topo, n.Dev)

	if n.ctl, err = lifecycle.New(n.Mediator, cpus); err != nil {
		return err
	}

	if path := n.SnapshotPath(); path != "" {
		if err := n.ctl.LoadFile(path); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}

	slog.Debug("node ready", "registers", cat.Len(), "cpus", len(n.Topo.CPUs()), "state", n.ctl.State())

	return nil
}

func (n *Node) catalog() (*catalog.Catalog, error) {
	if n.Model != "" {
		family, model, err := cpuid.ParseModel(n.Model)
		if err != nil {
			return nil, err
		}

		return catalog.ForModel(family, model)
	}

	f, err := os.Open(n.CPUInfo)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sig, err := cpuid.Parse(f)
	if err != nil {
		return nil, err
	}

	if !sig.HasFlag("msr") {
		return nil, fmt.Errorf("%s: %w", sig, errNoMSR)
	}

	if sig.Vendor != cpuid.Intel {
		return nil, fmt.Errorf("%s: %w", sig, catalog.ErrUnsupportedCPU)
	}

	return catalog.ForModel(sig.Family, sig.Model)
}

// Controller returns the lifecycle controller.
func (n *Node) Controller() *lifecycle.Controller {
	return n.ctl
}

// Command runs a virtual command and keeps the snapshot file in step: a
// save writes it, a completed restore of previous values removes it.
func (n *Node) Command(name string) (lifecycle.Result, error) {
	res, err := n.ctl.Execute(name)
	if err != nil {
		return res, err
	}

	path := n.SnapshotPath()
	if path == "" {
		return res, nil
	}

	switch name {
	case catalog.SaveCurrentValues:
		err = n.ctl.SaveFile(path)
	case catalog.RestorePreviousValues:
		if res.OK() {
			err = n.ctl.Discard(path)
		}
	}

	if err != nil {
		return res, fmt.Errorf("snapshot %s: %w", path, err)
	}

	return res, nil
}

// Write writes a register from cpu. Writing a virtual command runs it; the
// value is ignored.
func (n *Node) Write(name string, cpu int, value uint64) error {
	d, err := n.Catalog().Lookup(name)
	if err != nil {
		return err
	}

	if !d.IsVirtual() {
		return n.Mediator.Write(name, cpu, value)
	}

	res, err := n.Command(name)
	if err != nil {
		return err
	}

	return res.Err()
}

// Close releases the register devices.
func (n *Node) Close() error {
	if c, ok := n.Dev.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

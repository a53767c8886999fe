// Package probe prints what the mediator knows about the node.
package probe

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bobuhiro11/vmsr/catalog"
	"github.com/bobuhiro11/vmsr/mediator"
	"github.com/bobuhiro11/vmsr/topology"
)

// Catalog prints the whitelist, one register per line.
func Catalog(w io.Writer, cat *catalog.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintln(tw, "NAME\tADDR\tPERM\tSAVE\tEXIT\tSCOPE\tMASK")

	for d := range cat.All() {
		mask := "-"
		if m, ok := cat.Mask(d.Name); ok {
			mask = fmt.Sprintf("%#x", m)
		}

		exit := d.ExitAction.String()
		if i, ok := d.ExitAction.SaneIndex(); ok {
			v, _ := cat.SaneValue(i)
			exit = fmt.Sprintf("%s=%#x", exit, v)
		}

		fmt.Fprintf(tw, "%s\t%#x\t%s\t%v\t%s\t%s\t%s\n",
			d.Name, d.Address, d.Permission, d.ReadOnStart, exit, d.Granularity, mask)
	}

	return tw.Flush()
}

// Tuples prints the catalog in the exported table format, sentinel last.
func Tuples(w io.Writer, cat *catalog.Catalog) error {
	for _, t := range cat.Tuples() {
		if _, err := fmt.Fprintln(w, t); err != nil {
			return err
		}
	}

	return nil
}

// Topology prints the package and core of every online CPU.
func Topology(w io.Writer, topo *topology.Topology) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintln(tw, "CPU\tCORE\tPACKAGE")

	for _, cpu := range topo.CPUs() {
		tg, err := topo.Target(cpu)
		if err != nil {
			return err
		}

		fmt.Fprintf(tw, "%d\t%d\t%d\n", tg.Thread, tg.Core, tg.Package)
	}

	return tw.Flush()
}

// Values reads every hardware register as seen from cpu. Registers that
// cannot be read are listed with their error; the first such error is
// returned after the table is printed.
func Values(w io.Writer, med *mediator.Mediator, cpu int) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintf(tw, "NAME\tVALUE (cpu%d)\n", cpu)

	var first error

	for d := range med.Catalog().All() {
		if d.IsVirtual() {
			continue
		}

		v, err := med.Read(d.Name, cpu)
		if err != nil {
			if first == nil {
				first = err
			}

			fmt.Fprintf(tw, "%s\terror: %v\n", d.Name, err)

			continue
		}

		fmt.Fprintf(tw, "%s\t%#016x\n", d.Name, v)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	return first
}

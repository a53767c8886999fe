package flag_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/bobuhiro11/vmsr/flag"
	"github.com/google/go-cmp/cmp"
)

func TestParseValue(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want uint64
	}{
		{"0", 0},
		{"30", 30},
		{"0x1E", 0x1E},
		{" 0x1e ", 0x1E},
		{"0b1010", 10},
		{"0o17", 15},
		{"0x0006_8450_0014_8398", 0x0006845000148398},
		{"0xFFFFFFFFFFFFFFFF", ^uint64(0)},
	} {
		got, err := flag.ParseValue(tc.in)
		if err != nil {
			t.Errorf("ParseValue(%q): %v", tc.in, err)

			continue
		}

		if got != tc.want {
			t.Errorf("ParseValue(%q) = %#x, want %#x", tc.in, got, tc.want)
		}
	}
}

func TestParseValueInvalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "-1", "0x", "ten", "0x10000000000000000"} {
		if _, err := flag.ParseValue(in); err == nil {
			t.Errorf("ParseValue(%q) succeeded", in)
		}
	}

	if _, err := flag.ParseValue("0x10000000000000000"); !errors.Is(err, strconv.ErrRange) {
		t.Errorf("overflow: got %v, want ErrRange", err)
	}
}

func parse(t *testing.T, args ...string) (*flag.CLI, string) {
	t.Helper()

	var c flag.CLI

	p, err := kong.New(&c, kong.Name("vmsr"), kong.Vars{"config": "/etc/vmsr/config.yml"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, err := p.Parse(args)
	if err != nil {
		t.Fatal(err)
	}

	return &c, ctx.Command()
}

func TestParseArgs(t *testing.T) {
	t.Parallel()

	c, cmd := parse(t,
		"--device", "/dev/cpu/%d/msr",
		"--model", "06_2D",
		"--cpus", "0-3",
		"--log-level", "debug",
		"write", "SMSR_CLOCK_MODULATION", "0x1E", "-c", "2")

	if cmd != "write <register> <value>" {
		t.Errorf("command = %q", cmd)
	}

	want := flag.WriteCMD{Register: "SMSR_CLOCK_MODULATION", Value: "0x1E", CPU: 2}
	if diff := cmp.Diff(want, c.Write); diff != "" {
		t.Errorf("write (-want +got):\n%s", diff)
	}

	if c.Device != "/dev/cpu/%d/msr" || c.Model != "06_2D" || c.CPUs != "0-3" || c.LogLevel != "debug" {
		t.Errorf("globals = %q %q %q %q", c.Device, c.Model, c.CPUs, c.LogLevel)
	}

	if c.Config != "/etc/vmsr/config.yml" {
		t.Errorf("config = %q", c.Config)
	}
}

func TestParseLifecycleCommands(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"save", "restore-previous", "restore-sane", "probe", "catalog"} {
		_, cmd := parse(t, name)
		if cmd != name {
			t.Errorf("parse %s: command = %q", name, cmd)
		}
	}

	c, _ := parse(t, "read", "SMSR_PMC0")
	if c.Read.CPU != -1 {
		t.Errorf("read default cpu = %d, want -1", c.Read.CPU)
	}
}

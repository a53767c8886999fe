package mediator_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/bobuhiro11/vmsr/catalog"
	"github.com/bobuhiro11/vmsr/mediator"
	"github.com/bobuhiro11/vmsr/msr/msrtest"
	"github.com/bobuhiro11/vmsr/topology"
	"github.com/google/go-cmp/cmp"
)

var errEIO = errors.New("input/output error")

// node is 2 packages x 2 cores x 2 threads; siblings are n and n+4.
func node(t *testing.T) *topology.Topology {
	t.Helper()

	var tgs []topology.Target

	for cpu := 0; cpu < 8; cpu++ {
		tgs = append(tgs, topology.Target{Thread: cpu, Core: cpu % 2, Package: (cpu / 2) % 2})
	}

	topo, err := topology.New(tgs)
	if err != nil {
		t.Fatal(err)
	}

	return topo
}

func setup(t *testing.T) (*mediator.Mediator, *msrtest.Device) {
	t.Helper()

	dev := msrtest.New()

	return mediator.New(catalog.SandyBridgeEP(), node(t), dev), dev
}

func cpus(ws []msrtest.Access) []int {
	out := []int{}
	for _, w := range ws {
		out = append(out, w.CPU)
	}

	return out
}

func TestWriteReadOnlyDenied(t *testing.T) {
	t.Parallel()

	m, dev := setup(t)

	for d := range m.Catalog().All() {
		if d.Permission != catalog.ReadOnly {
			continue
		}

		for _, v := range []uint64{0, 1, ^uint64(0)} {
			if err := m.Write(d.Name, 0, v); !errors.Is(err, mediator.ErrPermissionDenied) {
				t.Errorf("Write(%s, %#x) = %v, want ErrPermissionDenied", d.Name, v, err)
			}
		}

		tg, _ := m.Topology().Target(0)
		if err := m.WriteTargets(d.Name, []topology.Target{tg}, 0); !errors.Is(err, mediator.ErrPermissionDenied) {
			t.Errorf("WriteTargets(%s) = %v, want ErrPermissionDenied", d.Name, err)
		}
	}

	if n := len(dev.Writes()) + dev.Reads(); n != 0 {
		t.Errorf("denied writes touched the device %d times", n)
	}
}

func TestVirtualCommands(t *testing.T) {
	t.Parallel()

	m, dev := setup(t)

	for _, name := range []string{
		catalog.SaveCurrentValues,
		catalog.RestorePreviousValues,
		catalog.RestoreSaneValues,
	} {
		if _, err := m.Read(name, 0); !errors.Is(err, mediator.ErrNotReadable) {
			t.Errorf("Read(%s) = %v, want ErrNotReadable", name, err)
		}

		if err := m.Write(name, 0, 1); !errors.Is(err, mediator.ErrPermissionDenied) {
			t.Errorf("Write(%s) = %v, want ErrPermissionDenied", name, err)
		}
	}

	if dev.Reads() != 0 || len(dev.Writes()) != 0 {
		t.Error("virtual command reached the device")
	}
}

func TestUnknownRegister(t *testing.T) {
	t.Parallel()

	m, _ := setup(t)

	if _, err := m.Read("MSR_IA32_DEBUGCTL", 0); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Read = %v, want ErrNotFound", err)
	}

	if err := m.Write("MSR_IA32_DEBUGCTL", 0, 1); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Write = %v, want ErrNotFound", err)
	}
}

func TestIsWhitelisted(t *testing.T) {
	t.Parallel()

	m, _ := setup(t)

	for addr, want := range map[uint32]bool{
		0x19A:  true,
		0x610:  true,
		0x30B:  true,
		0x1D9:  false, // IA32_DEBUGCTL
		0x1B:   false, // IA32_APIC_BASE
		0xFF00: false,
	} {
		if got := m.IsWhitelisted(addr); got != want {
			t.Errorf("IsWhitelisted(%#x) = %v, want %v", addr, got, want)
		}
	}
}

func TestWriteFanOut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr uint32
		cpu  int
		want []int
	}{
		{"SMSR_PMC0", 0x0C1, 5, []int{5}},
		{"SMSR_PMC4", 0x0C5, 5, []int{1, 5}},
		{"SMSR_ENERGY_PERF_BIAS", 0x1B0, 6, []int{2, 3, 6, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, dev := setup(t)

			if err := m.Write(tt.name, tt.cpu, 0x42); err != nil {
				t.Fatal(err)
			}

			got := cpus(dev.WritesTo(tt.addr))
			if diff := cmp.Diff(tt.want, got, sortInts); diff != "" {
				t.Errorf("written cpus (-want +got):\n%s", diff)
			}

			for _, cpu := range tt.want {
				if v := dev.Get(cpu, tt.addr); v != 0x42 {
					t.Errorf("cpu%d = %#x, want 0x42", cpu, v)
				}
			}
		})
	}
}

func TestWriteSpecialMasked(t *testing.T) {
	t.Parallel()

	m, dev := setup(t)

	const addr = 0x1A0

	bit16, bit38 := catalog.Bit[uint64](16), catalog.Bit[uint64](38)

	// Fast strings (bit 0) is thread scoped and must survive.
	for cpu := 0; cpu < 8; cpu++ {
		dev.Set(cpu, addr, 0x1|bit38)
	}

	if err := m.Write("SMSR_MISC_ENABLE", 0, bit16|0xFFFF); err != nil {
		t.Fatal(err)
	}

	for _, cpu := range []int{0, 1, 4, 5} {
		if got, want := dev.Get(cpu, addr), 0x1|bit16; got != want {
			t.Errorf("cpu%d = %#x, want %#x", cpu, got, want)
		}
	}

	for _, cpu := range []int{2, 3, 6, 7} {
		if got, want := dev.Get(cpu, addr), 0x1|bit38; got != want {
			t.Errorf("other package cpu%d = %#x, want %#x", cpu, got, want)
		}
	}
}

func TestReadRepresentative(t *testing.T) {
	t.Parallel()

	m, dev := setup(t)

	dev.Set(2, 0x611, 0x1111) // package 1 representative
	dev.Set(7, 0x611, 0x7777)
	dev.Set(7, 0x10, 0x10)

	got, err := m.Read("SMSR_PKG_ENERGY_STATUS", 7)
	if err != nil {
		t.Fatal(err)
	}

	if got != 0x1111 {
		t.Errorf("package read = %#x, want 0x1111", got)
	}

	if got, _ := m.Read("SMSR_TIME_STAMP_COUNTER", 7); got != 0x10 {
		t.Errorf("thread read = %#x, want 0x10", got)
	}
}

func TestHardwareError(t *testing.T) {
	t.Parallel()

	m, dev := setup(t)
	dev.Fail(5, 0x0C5, errEIO)

	err := m.Write("SMSR_PMC4", 1, 3)
	if !errors.Is(err, mediator.ErrHardwareAccess) || !errors.Is(err, errEIO) {
		t.Fatalf("got %v, want ErrHardwareAccess wrapping EIO", err)
	}

	var hw *mediator.HardwareError
	if !errors.As(err, &hw) || hw.Target.Thread != 5 || hw.Op != "write" {
		t.Fatalf("got %#v", hw)
	}

	if dev.Get(1, 0x0C5) != 3 {
		t.Error("sibling write was not attempted")
	}

	if _, err := m.Read("SMSR_PMC4", 5); !errors.Is(err, mediator.ErrHardwareAccess) {
		t.Errorf("Read = %v, want ErrHardwareAccess", err)
	}
}

func TestTargetChecks(t *testing.T) {
	t.Parallel()

	m, _ := setup(t)

	bad := []topology.Target{
		{Thread: 42},
		{Thread: 1, Core: 0, Package: 0},
	}

	for _, tg := range bad {
		if err := m.WriteTargets("SMSR_PMC0", []topology.Target{tg}, 0); !errors.Is(err, topology.ErrUnknownCPU) {
			t.Errorf("WriteTargets(%s) = %v, want ErrUnknownCPU", tg, err)
		}

		if _, err := m.ReadTarget("SMSR_PMC0", tg); !errors.Is(err, topology.ErrUnknownCPU) {
			t.Errorf("ReadTarget(%s) = %v, want ErrUnknownCPU", tg, err)
		}
	}

	if err := m.Write("SMSR_PMC0", 42, 0); !errors.Is(err, topology.ErrUnknownCPU) {
		t.Errorf("Write on cpu42 = %v, want ErrUnknownCPU", err)
	}
}

func TestConcurrentWritesSameRegister(t *testing.T) {
	t.Parallel()

	m, dev := setup(t)

	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)

		go func(v uint64) {
			defer wg.Done()

			if err := m.Write("SMSR_PKG_POWER_LIMIT", int(v%8), v%2); err != nil {
				t.Error(err)
			}
		}(uint64(i))
	}

	wg.Wait()

	// Per package the four targets were always written as one unit, so
	// they agree with each other.
	for _, pkg := range [][]int{{0, 1, 4, 5}, {2, 3, 6, 7}} {
		first := dev.Get(pkg[0], 0x610)
		for _, cpu := range pkg[1:] {
			if v := dev.Get(cpu, 0x610); v != first {
				t.Errorf("cpu%d = %#x, cpu%d = %#x", cpu, v, pkg[0], first)
			}
		}
	}
}

func TestWriteReportsEveryTarget(t *testing.T) {
	t.Parallel()

	m, dev := setup(t)
	dev.Fail(msrtest.AnyCPU, 0x1B0, errEIO)

	err := m.Write("SMSR_ENERGY_PERF_BIAS", 0, 6)

	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("got %T, want joined errors", err)
	}

	if n := len(joined.Unwrap()); n != 4 {
		t.Errorf("got %d target errors, want 4", n)
	}
}

package catalog

// Virtual command names.
const (
	SaveCurrentValues     = "VIRT_MSR_SAVE_CURRENT_VALUES"
	RestorePreviousValues = "VIRT_MSR_RESTORE_PREV_VALUES"
	RestoreSaneValues     = "VIRT_MSR_RESTORE_SANE_VALUES"
)

// Sane value indices of the Sandy Bridge-EP table.
const (
	ClockModulationIdx = 1
	MiscEnableIdx      = 2
	EnergyPerfBiasIdx  = 3
	PkgPowerLimitIdx   = 4
	PP0PowerLimitIdx   = 5
	DRAMPowerLimitIdx  = 6
)

// Sandy Bridge server parts, family 06 model 2D.
//
// Whitelisting rules:
//   - nothing that reads or changes interrupt delivery (thermal thresholds,
//     vectors);
//   - no debug features, they can expose kernel memory;
//   - no PEBS/DS style records written to DRAM;
//   - anything that changes performance is reset on exit;
//   - performance counters are zeroed and disabled on exit.
//
// Register addresses follow SDM vol. 4, tables 2-20 and 2-22.
func sandyBridgeEP() Table {
	rw, ro := ReadWrite, ReadOnly
	none, zero := NoWriteOnExit, ZeroOnExit

	return Table{
		Registers: []Descriptor{
			{SaveCurrentValues, 0xFF00, ro, false, none, Virtual},
			{RestorePreviousValues, 0xFF01, ro, false, none, Virtual},
			{RestoreSaneValues, 0xFF02, ro, false, none, Virtual},

			{"SMSR_TIME_STAMP_COUNTER", 0x010, ro, false, none, Thread},
			{"SMSR_PLATFORM_ID", 0x017, ro, false, none, Package},
			{"SMSR_PMC0", 0x0C1, rw, false, zero, Thread},
			{"SMSR_PMC1", 0x0C2, rw, false, zero, Thread},
			{"SMSR_PMC2", 0x0C3, rw, false, zero, Thread},
			{"SMSR_PMC3", 0x0C4, rw, false, zero, Thread},
			{"SMSR_PMC4", 0x0C5, rw, false, zero, Core},
			{"SMSR_PMC5", 0x0C6, rw, false, zero, Core},
			{"SMSR_PMC6", 0x0C7, rw, false, zero, Core},
			{"SMSR_PMC7", 0x0C8, rw, false, zero, Core},
			{"SMSR_MPERF", 0x0E7, ro, false, none, Thread},
			{"SMSR_APERF", 0x0E8, ro, false, none, Thread},
			{"SMSR_PERFEVTSEL0", 0x186, rw, false, zero, Thread},
			{"SMSR_PERFEVTSEL1", 0x187, rw, false, zero, Thread},
			{"SMSR_PERFEVTSEL2", 0x188, rw, false, zero, Thread},
			{"SMSR_PERFEVTSEL3", 0x189, rw, false, zero, Thread},
			{"SMSR_PERFEVTSEL4", 0x18A, rw, false, zero, Core},
			{"SMSR_PERFEVTSEL5", 0x18B, rw, false, zero, Core},
			{"SMSR_PERFEVTSEL6", 0x18C, rw, false, zero, Core},
			{"SMSR_PERFEVTSEL7", 0x18D, rw, false, zero, Core},
			{"SMSR_PERF_STATUS", 0x198, ro, false, none, Package},
			{"SMSR_PERF_CTL", 0x199, rw, false, zero, Thread},
			{"SMSR_CLOCK_MODULATION", 0x19A, rw, true, RestoreToIndex(ClockModulationIdx), Thread},
			{"SMSR_THERM_STATUS", 0x19C, ro, false, none, Core},
			{"SMSR_MISC_ENABLE", 0x1A0, rw, true, RestoreToIndex(MiscEnableIdx), Special},
			{"SMSR_OFFCORE_RSP_0", 0x1A6, rw, false, none, Thread},
			{"SMSR_OFFCORE_RSP_1", 0x1A7, rw, false, none, Thread},
			{"SMSR_ENERGY_PERF_BIAS", 0x1B0, rw, true, RestoreToIndex(EnergyPerfBiasIdx), Package},
			{"SMSR_PACKAGE_THERM_STATUS", 0x1B1, ro, false, none, Package},
			{"SMSR_FIXED_CTR0", 0x309, rw, false, zero, Thread},
			{"SMSR_FIXED_CTR1", 0x30A, rw, false, zero, Thread},
			// Listed as 0x30A in older tables; the SDM has FIXED_CTR2 at 0x30B.
			{"SMSR_FIXED_CTR2", 0x30B, rw, false, zero, Thread},
			{"SMSR_PERF_CAPABILITIES", 0x345, ro, false, none, Thread},
			{"SMSR_FIXED_CTR_CTRL", 0x38D, rw, false, zero, Thread},
			{"SMSR_PERF_GLOBAL_STATUS", 0x38E, ro, false, none, Thread},
			{"SMSR_PERF_GLOBAL_CTRL", 0x38F, rw, false, zero, Thread},
			{"SMSR_PERF_GLOBAL_OVF_CTRL", 0x390, rw, false, zero, Thread},
			{"SMSR_PEBS_ENABLE", 0x3F1, rw, false, zero, Thread},
			{"SMSR_PEBS_LD_LAT", 0x3F6, rw, false, zero, Thread},
			{"SMSR_RAPL_POWER_UNIT", 0x606, ro, false, none, Package},
			{"SMSR_PKG_POWER_LIMIT", 0x610, rw, true, RestoreToIndex(PkgPowerLimitIdx), Package},
			{"SMSR_PKG_ENERGY_STATUS", 0x611, ro, false, none, Package},
			{"SMSR_PKG_POWER_INFO", 0x612, ro, false, none, Package},
			{"SMSR_PP0_POWER_LIMIT", 0x638, rw, true, RestoreToIndex(PP0PowerLimitIdx), Package},
			{"SMSR_PP0_ENERGY_STATUS", 0x639, ro, false, none, Package},

			{"SMSR_MSR_PKG_PERF_STATUS", 0x613, ro, false, none, Package},
			{"SMSR_DRAM_POWER_LIMIT", 0x618, rw, true, RestoreToIndex(DRAMPowerLimitIdx), Package},
			{"SMSR_DRAM_ENERGY_STATUS", 0x619, ro, false, none, Package},
			{"SMSR_DRAM_PERF_STATUS", 0x61B, ro, false, none, Package},
			{"SMSR_DRAM_POWER_INFO", 0x61C, ro, false, none, Package},
		},
		Sane: map[int]uint64{
			// On-demand modulation off (bit 4 clear), duty field parked at
			// 87.5%.
			ClockModulationIdx: 0x0E,

			// Enhanced SpeedStep on, turbo allowed.
			MiscEnableIdx: Bit[uint64](16),

			// Balanced.
			EnergyPerfBiasIdx: 6,

			// PL1 115 W over ~1 s, PL2 138 W over ~8 ms, both enabled.
			// Assumes the default 1/8 W power unit.
			PkgPowerLimitIdx: 0x0006845000148398,

			// Power plane and DRAM limits off.
			PP0PowerLimitIdx:  0,
			DRAMPowerLimitIdx: 0,
		},
		Masks: map[string]uint64{
			// Package scoped fields only: EIST enable and turbo disable.
			"SMSR_MISC_ENABLE": Bit[uint64](16) | Bit[uint64](38),
		},
	}
}

// SandyBridgeEP returns the catalog for family 06 model 2D.
func SandyBridgeEP() *Catalog {
	return MustNew(sandyBridgeEP())
}

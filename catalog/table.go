package catalog

import "github.com/frobware/go-opstart"

// Entry is one row of the static hardware event table.
type Entry struct {
	// CPUMask has bit (1 << CPUType) set for every CPU type that
	// implements the event.
	CPUMask     uint32
	CounterMask uint32
	Value       uint8
	UnitMask    *opstart.UnitMask
	Name        string
	Help        string
	MinCount    uint32
}

const (
	cpuPPro   = 1 << uint(opstart.CPUPPro)
	cpuPII    = 1 << uint(opstart.CPUPII)
	cpuPIII   = 1 << uint(opstart.CPUPIII)
	cpuAthlon = 1 << uint(opstart.CPUAthlon)
	cpuHammer = 1 << uint(opstart.CPUHammer)

	cpuP6  = cpuPPro | cpuPII | cpuPIII
	cpuAMD = cpuAthlon | cpuHammer

	ctr0   = 1 << 0
	ctr1   = 1 << 1
	ctr01  = ctr0 | ctr1
	ctrAll = 0xf
)

// Unit masks shared by several table rows. The catalog clones them per
// descriptor.
var (
	umMESI = &opstart.UnitMask{
		Mode:    opstart.UnitMaskBitmask,
		Default: 0x0f,
		Entries: []opstart.UnitMaskEntry{
			{Value: 0x08, Description: "(M)odified cache state"},
			{Value: 0x04, Description: "(E)xclusive cache state"},
			{Value: 0x02, Description: "(S)hared cache state"},
			{Value: 0x01, Description: "(I)nvalid cache state"},
			{Value: 0x0f, Description: "all MESI cache state"},
		},
	}

	umEBLBus = &opstart.UnitMask{
		Mode:    opstart.UnitMaskExclusive,
		Default: 0x00,
		Entries: []opstart.UnitMaskEntry{
			{Value: 0x00, Description: "self-generated transactions"},
			{Value: 0x20, Description: "any transactions"},
		},
	}

	umMMXInstrType = &opstart.UnitMask{
		Mode:    opstart.UnitMaskBitmask,
		Default: 0x3f,
		Entries: []opstart.UnitMaskEntry{
			{Value: 0x01, Description: "MMX packed multiplies"},
			{Value: 0x02, Description: "MMX packed shifts"},
			{Value: 0x04, Description: "MMX pack operations"},
			{Value: 0x08, Description: "MMX unpack operations"},
			{Value: 0x10, Description: "MMX packed logical"},
			{Value: 0x20, Description: "MMX packed arithmetic"},
			{Value: 0x3f, Description: "all of the above"},
		},
	}

	umFPMMXTrans = &opstart.UnitMask{
		Mode:    opstart.UnitMaskExclusive,
		Default: 0x00,
		Entries: []opstart.UnitMaskEntry{
			{Value: 0x00, Description: "MMX to float transitions"},
			{Value: 0x01, Description: "float to MMX transitions"},
		},
	}

	umSegRename = &opstart.UnitMask{
		Mode:    opstart.UnitMaskBitmask,
		Default: 0x0f,
		Entries: []opstart.UnitMaskEntry{
			{Value: 0x01, Description: "ES segment"},
			{Value: 0x02, Description: "DS segment"},
			{Value: 0x04, Description: "FS segment"},
			{Value: 0x08, Description: "GS segment"},
			{Value: 0x0f, Description: "ES, DS, FS, GS segments"},
		},
	}

	umKNIPrefetch = &opstart.UnitMask{
		Mode:    opstart.UnitMaskExclusive,
		Default: 0x00,
		Entries: []opstart.UnitMaskEntry{
			{Value: 0x00, Description: "prefetch NTA"},
			{Value: 0x01, Description: "prefetch T1"},
			{Value: 0x02, Description: "prefetch T2"},
			{Value: 0x03, Description: "weakly-ordered stores"},
		},
	}

	umMOESI = &opstart.UnitMask{
		Mode:    opstart.UnitMaskBitmask,
		Default: 0x1f,
		Entries: []opstart.UnitMaskEntry{
			{Value: 0x10, Description: "(M)odified cache state"},
			{Value: 0x08, Description: "(O)wner cache state"},
			{Value: 0x04, Description: "(E)xclusive cache state"},
			{Value: 0x02, Description: "(S)hared cache state"},
			{Value: 0x01, Description: "(I)nvalid cache state"},
			{Value: 0x1f, Description: "all MOESI cache state"},
		},
	}

	umHammerFPU = &opstart.UnitMask{
		Mode:    opstart.UnitMaskMandatory,
		Default: 0x0f,
	}
)

// Table is the static hardware event table, in display order.
var Table = []Entry{
	// P6 family
	{cpuP6, ctr01, 0x79, nil, "CPU_CLK_UNHALTED", "clocks processor is not halted", 6000},
	{cpuP6, ctr01, 0x43, nil, "DATA_MEM_REFS", "all memory references, cachable and non", 500},
	{cpuP6, ctr01, 0x45, nil, "DCU_LINES_IN", "total lines allocated in the DCU", 500},
	{cpuP6, ctr01, 0x46, nil, "DCU_M_LINES_IN", "number of M state lines allocated in DCU", 500},
	{cpuP6, ctr01, 0x47, nil, "DCU_M_LINES_OUT", "number of M lines evicted from the DCU", 500},
	{cpuP6, ctr01, 0x48, nil, "DCU_MISS_OUTSTANDING", "number of cycles while DCU miss outstanding", 500},
	{cpuP6, ctr01, 0x80, nil, "IFU_IFETCH", "number of non/cachable instruction fetches", 500},
	{cpuP6, ctr01, 0x81, nil, "IFU_IFETCH_MISS", "number of instruction fetch misses", 500},
	{cpuP6, ctr01, 0x85, nil, "ITLB_MISS", "number of ITLB misses", 500},
	{cpuP6, ctr01, 0x86, nil, "IFU_MEM_STALL", "cycles instruction fetch pipe is stalled", 500},
	{cpuP6, ctr01, 0x87, nil, "ILD_STALL", "cycles instruction length decoder is stalled", 500},
	{cpuP6, ctr01, 0x28, umMESI, "L2_IFETCH", "number of L2 instruction fetches", 500},
	{cpuP6, ctr01, 0x29, umMESI, "L2_LD", "number of L2 data loads", 500},
	{cpuP6, ctr01, 0x2a, umMESI, "L2_ST", "number of L2 data stores", 500},
	{cpuP6, ctr01, 0x24, nil, "L2_LINES_IN", "number of allocated lines in L2", 500},
	{cpuP6, ctr01, 0x26, nil, "L2_LINES_OUT", "number of recovered lines from L2", 500},
	{cpuP6, ctr01, 0x25, nil, "L2_M_LINES_INM", "number of modified lines allocated in L2", 500},
	{cpuP6, ctr01, 0x27, nil, "L2_M_LINES_OUTM", "number of modified lines removed from L2", 500},
	{cpuP6, ctr01, 0x2e, umMESI, "L2_RQSTS", "number of L2 requests", 500},
	{cpuP6, ctr01, 0x21, nil, "L2_ADS", "number of L2 address strobes", 500},
	{cpuP6, ctr01, 0x22, nil, "L2_DBUS_BUSY", "number of cycles data bus was busy", 500},
	{cpuP6, ctr01, 0x23, nil, "L2_DBUS_BUSY_RD", "cycles data bus was busy in xfer from L2 to CPU", 500},
	{cpuP6, ctr01, 0x62, umEBLBus, "BUS_DRDY_CLOCKS", "number of clocks DRDY is asserted", 500},
	{cpuP6, ctr01, 0x63, umEBLBus, "BUS_LOCK_CLOCKS", "number of clocks LOCK is asserted", 500},
	{cpuP6, ctr01, 0x60, nil, "BUS_REQ_OUTSTANDING", "number of outstanding bus requests", 500},
	{cpuP6, ctr01, 0x65, umEBLBus, "BUS_TRAN_BRD", "number of burst read transactions", 500},
	{cpuP6, ctr01, 0x66, umEBLBus, "BUS_TRAN_RFO", "number of read for ownership transactions", 500},
	{cpuP6, ctr01, 0x67, umEBLBus, "BUS_TRANS_WB", "number of write back transactions", 500},
	{cpuP6, ctr01, 0x68, umEBLBus, "BUS_TRAN_IFETCH", "number of instruction fetch transactions", 500},
	{cpuP6, ctr01, 0x69, umEBLBus, "BUS_TRAN_INVAL", "number of invalidate transactions", 500},
	{cpuP6, ctr01, 0x6a, umEBLBus, "BUS_TRAN_PWR", "number of partial write transactions", 500},
	{cpuP6, ctr01, 0x6b, umEBLBus, "BUS_TRANS_P", "number of partial transactions", 500},
	{cpuP6, ctr01, 0x6c, umEBLBus, "BUS_TRANS_IO", "number of I/O transactions", 500},
	{cpuP6, ctr01, 0x6d, umEBLBus, "BUS_TRANS_DEF", "number of deferred transactions", 500},
	{cpuP6, ctr01, 0x6e, umEBLBus, "BUS_TRAN_BURST", "number of burst transactions", 500},
	{cpuP6, ctr01, 0x70, umEBLBus, "BUS_TRAN_ANY", "number of all transactions", 500},
	{cpuP6, ctr01, 0x6f, umEBLBus, "BUS_TRAN_MEM", "number of memory transactions", 500},
	{cpuP6, ctr01, 0x61, nil, "BUS_BNR_DRV", "number of bus clock cycles during which this processor is driving the BNR pin", 500},
	{cpuP6, ctr0, 0xc1, nil, "FLOPS", "number of computational FP operations executed", 3000},
	{cpuP6, ctr0, 0x10, nil, "FP_COMP_OPS_EXE", "number of FP computational micro-ops executed", 2000},
	{cpuP6, ctr1, 0x11, nil, "FP_ASSIST", "number of FP exceptions handled by microcode", 500},
	{cpuP6, ctr1, 0x12, nil, "MUL", "number of multiplies", 1000},
	{cpuP6, ctr1, 0x13, nil, "DIV", "number of divides", 500},
	{cpuP6, ctr0, 0x14, nil, "CYCLES_DIV_BUSY", "cycles divider is busy", 1000},
	{cpuP6, ctr01, 0x03, nil, "LD_BLOCKS", "number of store buffer blocks", 500},
	{cpuP6, ctr01, 0x04, nil, "SB_DRAINS", "number of store buffer drain cycles", 500},
	{cpuP6, ctr01, 0x05, nil, "MISALIGN_MEM_REF", "number of misaligned data memory references", 500},
	{cpuP6, ctr01, 0xc0, nil, "INST_RETIRED", "number of instructions retired", 6000},
	{cpuP6, ctr01, 0xc2, nil, "UOPS_RETIRED", "number of UOPs retired", 6000},
	{cpuP6, ctr01, 0xd0, nil, "INST_DECODED", "number of instructions decoded", 6000},
	{cpuP6, ctr01, 0xc8, nil, "HW_INT_RX", "number of hardware interrupts received", 500},
	{cpuP6, ctr01, 0xc6, nil, "CYCLES_INT_MASKED", "cycles interrupts are disabled", 500},
	{cpuP6, ctr01, 0xc7, nil, "CYCLES_INT_PENDING_AND_MASKED", "cycles interrupts are disabled with pending interrupts", 500},
	{cpuP6, ctr01, 0xc4, nil, "BR_INST_RETIRED", "number of branch instructions retired", 500},
	{cpuP6, ctr01, 0xc5, nil, "BR_MISS_PRED_RETIRED", "number of mispredicted branches retired", 500},
	{cpuP6, ctr01, 0xc9, nil, "BR_TAKEN_RETIRED", "number of taken branches retired", 500},
	{cpuP6, ctr01, 0xca, nil, "BR_MISS_PRED_TAKEN_RET", "number of taken mispredictions branches retired", 500},
	{cpuP6, ctr01, 0xe0, nil, "BR_INST_DECODED", "number of branch instructions decoded", 500},
	{cpuP6, ctr01, 0xe2, nil, "BTB_MISSES", "number of branches that miss the BTB", 500},
	{cpuP6, ctr01, 0xe4, nil, "BR_BOGUS", "number of bogus branches", 500},
	{cpuP6, ctr01, 0xe6, nil, "BACLEARS", "number of times BACLEAR is asserted", 500},
	{cpuP6, ctr01, 0xa2, nil, "RESOURCE_STALLS", "cycles during resource related stalls", 500},
	{cpuP6, ctr01, 0xd2, nil, "PARTIAL_RAT_STALLS", "cycles or events for partial stalls", 500},
	{cpuP6, ctr01, 0x06, nil, "SEGMENT_REG_LOADS", "number of segment register loads", 500},
	{cpuPII | cpuPIII, ctr01, 0xb0, nil, "MMX_INSTR_EXEC", "number of MMX instructions executed", 3000},
	{cpuPII | cpuPIII, ctr01, 0xb1, nil, "MMX_SAT_INSTR_EXEC", "number of MMX saturating instructions executed", 3000},
	{cpuPII | cpuPIII, ctr01, 0xb2, nil, "MMX_UOPS_EXEC", "number of MMX UOPS executed", 3000},
	{cpuPII | cpuPIII, ctr01, 0xb3, umMMXInstrType, "MMX_INSTR_TYPE_EXEC", "number of MMX packing instructions", 3000},
	{cpuPII | cpuPIII, ctr01, 0xcc, umFPMMXTrans, "FP_MMX_TRANS", "MMX-floating point transitions", 3000},
	{cpuPII | cpuPIII, ctr01, 0xcd, nil, "MMX_ASSIST", "number of EMMS instructions executed", 3000},
	{cpuPII | cpuPIII, ctr01, 0xce, nil, "MMX_INSTR_RET", "number of MMX instructions retired", 3000},
	{cpuPII | cpuPIII, ctr01, 0xd4, umSegRename, "SEG_RENAME_STALLS", "number of segment register renaming stalls", 3000},
	{cpuPII | cpuPIII, ctr01, 0xd5, umSegRename, "SEG_REG_RENAMES", "number of segment register renames", 3000},
	{cpuPII | cpuPIII, ctr01, 0xd6, nil, "RET_SEG_RENAMES", "number of segment register rename events retired", 3000},
	{cpuPIII, ctr01, 0x07, umKNIPrefetch, "EMON_KNI_PREF_DISPATCHED", "number of KNI pre-fetch/weakly ordered insns dispatched", 300},
	{cpuPIII, ctr01, 0x4b, umKNIPrefetch, "EMON_KNI_PREF_MISS", "number of KNI pre-fetch/weakly ordered insns that miss all caches", 300},

	// AMD Athlon and Hammer
	{cpuAMD, ctrAll, 0x76, nil, "CPU_CLK_UNHALTED", "cycles outside of halt state", 3000},
	{cpuAMD, ctrAll, 0xc0, nil, "RETIRED_INSNS", "retired instructions (includes exceptions, interrupts, resyncs)", 3000},
	{cpuAMD, ctrAll, 0xc1, nil, "RETIRED_OPS", "retired Ops", 500},
	{cpuAMD, ctrAll, 0x80, nil, "ICACHE_FETCHES", "instruction cache fetches", 500},
	{cpuAMD, ctrAll, 0x81, nil, "ICACHE_MISSES", "instruction cache misses", 500},
	{cpuAMD, ctrAll, 0x40, nil, "DATA_CACHE_ACCESSES", "data cache accesses", 500},
	{cpuAMD, ctrAll, 0x41, nil, "DATA_CACHE_MISSES", "data cache misses", 500},
	{cpuAMD, ctrAll, 0x42, umMOESI, "DATA_CACHE_REFILLS_FROM_L2", "data cache refills from L2", 500},
	{cpuAMD, ctrAll, 0x43, umMOESI, "DATA_CACHE_REFILLS_FROM_SYSTEM", "data cache refills from system", 500},
	{cpuAMD, ctrAll, 0x44, umMOESI, "DATA_CACHE_WRITEBACKS", "data cache writebacks", 500},
	{cpuAMD, ctrAll, 0x45, nil, "L1_DTLB_MISSES_L2_DTLD_HITS", "L1 DTLB misses and L2 DTLB hits", 500},
	{cpuAMD, ctrAll, 0x46, nil, "L1_AND_L2_DTLB_MISSES", "L1 and L2 DTLB misses", 500},
	{cpuAMD, ctrAll, 0x47, nil, "MISALIGNED_DATA_REFS", "misaligned data references", 500},
	{cpuAMD, ctrAll, 0x84, nil, "L1_ITLB_MISSES_L2_ITLB_HITS", "L1 ITLB misses (and L2 ITLB hits)", 500},
	{cpuAMD, ctrAll, 0x85, nil, "L1_AND_L2_ITLB_MISSES", "L1 and L2 ITLB misses", 500},
	{cpuAMD, ctrAll, 0xc2, nil, "RETIRED_BRANCHES", "retired branches (conditional, unconditional, exceptions, interrupts)", 500},
	{cpuAMD, ctrAll, 0xc3, nil, "RETIRED_BRANCHES_MISPREDICTED", "retired branches mispredicted", 500},
	{cpuAMD, ctrAll, 0xc4, nil, "RETIRED_TAKEN_BRANCHES", "retired taken branches", 500},
	{cpuAMD, ctrAll, 0xc5, nil, "RETIRED_TAKEN_BRANCHES_MISPREDICTED", "retired taken branches mispredicted", 500},
	{cpuAMD, ctrAll, 0xc6, nil, "RETIRED_FAR_CONTROL_TRANSFERS", "retired far control transfers", 500},
	{cpuAMD, ctrAll, 0xc7, nil, "RETIRED_RESYNC_BRANCHES", "retired resync branches (only non-control transfer branches counted)", 500},
	{cpuAMD, ctrAll, 0xcd, nil, "INTERRUPTS_MASKED", "cycles with interrupts masked (IF=0)", 500},
	{cpuAMD, ctrAll, 0xce, nil, "INTERRUPTS_MASKED_PENDING", "cycles with interrupts masked while interrupt pending", 500},
	{cpuAMD, ctrAll, 0xcf, nil, "HARDWARE_INTERRUPTS", "number of taken hardware interrupts", 10},
	{cpuHammer, ctrAll, 0xcb, umHammerFPU, "RETIRED_MMX_FP_INSTRUCTIONS", "retired MMX, 3DNow! and x87 floating point instructions", 500},
}

package encoder

// preset is one row of the canonical compression-level table. All levels
// use Tukey(0.5) as their apodization; higher
// levels only widen the search, they never change window families.
type preset struct {
	doMidSide               bool
	looseMidSide            bool
	maxLPCOrder             int
	qlpPrecision             int // 0 = auto
	doQLPCoeffPrecSearch    bool
	doEscapeCoding          bool
	doExhaustiveModelSearch bool
	minPartitionOrder       int
	maxPartitionOrder       int
	riceParameterSearchDist int // vestigial libFLAC knob; always 0
}

// presets is the canonical libFLAC compression-level table, reproduced
// verbatim.
var presets = [9]preset{
	0: {doMidSide: false, looseMidSide: false, maxLPCOrder: 0, minPartitionOrder: 0, maxPartitionOrder: 3},
	1: {doMidSide: true, looseMidSide: true, maxLPCOrder: 0, minPartitionOrder: 0, maxPartitionOrder: 3},
	2: {doMidSide: true, looseMidSide: false, maxLPCOrder: 0, minPartitionOrder: 0, maxPartitionOrder: 3},
	3: {doMidSide: false, looseMidSide: false, maxLPCOrder: 6, minPartitionOrder: 0, maxPartitionOrder: 4},
	4: {doMidSide: true, looseMidSide: true, maxLPCOrder: 8, minPartitionOrder: 0, maxPartitionOrder: 4},
	5: {doMidSide: true, looseMidSide: false, maxLPCOrder: 8, minPartitionOrder: 0, maxPartitionOrder: 5},
	6: {doMidSide: true, looseMidSide: false, maxLPCOrder: 8, minPartitionOrder: 0, maxPartitionOrder: 6},
	7: {doMidSide: true, looseMidSide: false, maxLPCOrder: 8, minPartitionOrder: 0, maxPartitionOrder: 6, doExhaustiveModelSearch: true},
	8: {doMidSide: true, looseMidSide: false, maxLPCOrder: 12, minPartitionOrder: 0, maxPartitionOrder: 6, doExhaustiveModelSearch: true},
}

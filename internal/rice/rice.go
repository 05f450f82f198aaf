// Package rice implements partitioned-Rice entropy coding of predictor
// residuals: per-partition parameter search, escape coding of outlier
// partitions, and the PartitionedRice → PartitionedRice2 upgrade rule.
//
// The partition-order search follows libFLAC's
// precompute-at-max-order-then-fold-upward technique.
package rice

import "math"

// Method identifies which entropy-coding method a subframe's residual was
// encoded with; the wire value is carried in the subframe header's 2-bit
// entropy method field.
type Method int

const (
	// PartitionedRice uses a 4-bit Rice parameter per partition, escape
	// value 15.
	PartitionedRice Method = iota
	// PartitionedRice2 uses a 5-bit Rice parameter per partition, escape
	// value 31; used when any partition's parameter would not fit in 4
	// bits.
	PartitionedRice2
)

// escapeLimit returns the parameter value reserved to mean "this partition
// is raw-coded" for the given method.
func (m Method) escapeLimit() uint32 {
	if m == PartitionedRice2 {
		return 31
	}
	return 15
}

// Partition describes the entropy coding chosen for one partition of a
// residual.
type Partition struct {
	Escaped bool
	Param   uint32 // Rice parameter, valid when !Escaped.
	RawBits uint32 // raw bit width per sample, valid when Escaped.
	Bits    float64
}

// Plan is the result of partitioning and parameter-searching a residual:
// the chosen method, partition order, and the per-partition choice.
type Plan struct {
	Method     Method
	Order      int
	Partitions []Partition
}

// partitionBounds returns the sample-index range [start, end) of partition
// i of 2^order equal-sized partitions tiling a block of blockSize samples,
// where predOrder samples at the very start of the block were consumed as
// warm-up and are excluded from partition 0.
func partitionBounds(order, predOrder, blockSize, i int) (start, end int) {
	partLen := blockSize >> uint(order)
	start = i * partLen
	end = start + partLen
	if i == 0 {
		start += predOrder
	}
	return start, end
}

// FindBestPartitionOrder searches partition orders minPO..maxPO (inclusive)
// for the cheapest way to Rice-code residual (which holds blockSize-
// predOrder values, residual[i] corresponding to sample predOrder+i of the
// block), and returns the winning Plan. allowEscape enables per-partition
// raw/escape coding. paramLimit is the stream's Rice escape value (15 for
// bit depths up to 16, 31 otherwise); parameters are clamped to
// paramLimit-1, and the plan's method is upgraded to PartitionedRice2 when
// any chosen parameter does not fit the 4-bit field.
//
// maxPO is silently reduced so that every partition (including partition
// 0, which is predOrder samples shorter) has at least one sample and
// blockSize is evenly divisible by 2^maxPO.
func FindBestPartitionOrder(residual []int32, predOrder, blockSize, minPO, maxPO int, allowEscape bool, paramLimit uint32) Plan {
	maxPO = clampMaxPartitionOrder(predOrder, blockSize, maxPO)
	if minPO > maxPO {
		minPO = maxPO
	}

	// Precompute per-partition absolute sums and, if needed, max-abs at
	// max order, then fold pairs upward for every lower order.
	sums := absSumsAtOrder(residual, predOrder, blockSize, maxPO)
	var rawBits []uint32
	if allowEscape {
		rawBits = rawBitsAtOrder(residual, predOrder, blockSize, maxPO)
	}

	var best Plan
	bestBits := math.MaxFloat64
	sumsAtOrder := sums
	rawAtOrder := rawBits
	for po := maxPO; po >= minPO; po-- {
		n := 1 << uint(po)
		partitions := make([]Partition, n)
		var total float64
		var maxParam uint32
		for i := 0; i < n; i++ {
			start, end := partitionBounds(po, predOrder, blockSize, i)
			count := end - start
			part := bestPartition(sumsAtOrder[i], count, paramLimit)
			if allowEscape {
				esc := escapePartition(rawAtOrder[i], count)
				if esc.Bits < part.Bits {
					part = esc
				}
			}
			if !part.Escaped && part.Param > maxParam {
				maxParam = part.Param
			}
			partitions[i] = part
			total += part.Bits
		}
		// A parameter that doesn't fit the 4-bit field forces the 5-bit
		// PartitionedRice2 method, costing one extra bit per partition.
		method := PartitionedRice
		if maxParam > 14 {
			method = PartitionedRice2
			total += float64(n)
		}
		// Partition-order field overhead (4 bits) is order-independent so
		// it doesn't affect the argmin; omitted from total.
		if total < bestBits {
			bestBits = total
			best = Plan{Method: method, Order: po, Partitions: append([]Partition(nil), partitions...)}
		}
		if po > minPO {
			sumsAtOrder = foldUp(sumsAtOrder)
			if allowEscape {
				rawAtOrder = foldUpMax(rawAtOrder)
			}
		}
	}
	return best
}

func clampMaxPartitionOrder(predOrder, blockSize, maxPO int) int {
	for maxPO > 0 {
		if blockSize%(1<<uint(maxPO)) != 0 {
			maxPO--
			continue
		}
		if (blockSize>>uint(maxPO)) <= predOrder {
			maxPO--
			continue
		}
		break
	}
	if maxPO < 0 {
		maxPO = 0
	}
	return maxPO
}

// absSumsAtOrder computes, for each of the 2^order partitions, the sum of
// |residual| over that partition's samples.
func absSumsAtOrder(residual []int32, predOrder, blockSize, order int) []uint64 {
	n := 1 << uint(order)
	sums := make([]uint64, n)
	idx := 0
	for i := 0; i < n; i++ {
		start, end := partitionBounds(order, predOrder, blockSize, i)
		count := end - start
		var sum uint64
		for j := 0; j < count; j++ {
			sum += zigzagAbs(residual[idx])
			idx++
		}
		sums[i] = sum
	}
	return sums
}

func zigzagAbs(v int32) uint64 {
	if v < 0 {
		return uint64(-int64(v))
	}
	return uint64(v)
}

// rawBitsAtOrder computes, for each partition at the given order, the raw
// bit width needed to store its largest-magnitude residual.
func rawBitsAtOrder(residual []int32, predOrder, blockSize, order int) []uint32 {
	n := 1 << uint(order)
	bits := make([]uint32, n)
	idx := 0
	for i := 0; i < n; i++ {
		start, end := partitionBounds(order, predOrder, blockSize, i)
		count := end - start
		var max uint64
		for j := 0; j < count; j++ {
			if a := zigzagAbs(residual[idx]); a > max {
				max = a
			}
			idx++
		}
		bits[i] = rawBitsFor(max)
	}
	return bits
}

func rawBitsFor(maxAbs uint64) uint32 {
	if maxAbs == 0 {
		return 1
	}
	// signed raw storage: the bit length of maxAbs as magnitude bits + 1
	// sign bit.
	bits := uint32(0)
	for (uint64(1) << bits) <= maxAbs {
		bits++
	}
	return bits + 1
}

// foldUp combines adjacent pairs of a higher-order partition sum array into
// the array for the next lower order.
func foldUp(sums []uint64) []uint64 {
	out := make([]uint64, len(sums)/2)
	for i := range out {
		out[i] = sums[2*i] + sums[2*i+1]
	}
	return out
}

func foldUpMax(bits []uint32) []uint32 {
	out := make([]uint32, len(bits)/2)
	for i := range out {
		a, b := bits[2*i], bits[2*i+1]
		if b > a {
			a = b
		}
		out[i] = a
	}
	return out
}

// paramLen4 and paramLen5 are the widths of the Rice-parameter field per
// partition for the two methods; an escaped partition costs that field
// (holding the escape value) plus rawBitsLen bits for raw_bits.
const (
	paramLen4  = 4
	paramLen5  = 5
	rawBitsLen = 5
)

// bestPartition picks the Rice parameter minimizing the estimated cost of
// one partition, clamped to paramLimit-1. The cost carries the 4-bit
// parameter field; the caller adds the extra bit per partition if the plan
// ends up needing the 5-bit PartitionedRice2 fields.
func bestPartition(sumAbs uint64, n int, escapeLimit uint32) Partition {
	paramLenBits := paramLen4
	if n == 0 {
		return Partition{Param: 0, Bits: float64(paramLenBits)}
	}
	// Initial guess from mean magnitude, then locally refine: the cost
	// function is convex in k so a small neighborhood search suffices.
	mean := float64(sumAbs) / float64(n)
	guess := 0
	if mean > 0 {
		guess = int(math.Floor(math.Log2(mean)))
	}
	if guess < 0 {
		guess = 0
	}
	if guess > int(escapeLimit)-1 {
		guess = int(escapeLimit) - 1
	}

	best := -1
	var bestBits float64 = math.MaxFloat64
	lo, hi := guess-2, guess+2
	if lo < 0 {
		lo = 0
	}
	if hi > int(escapeLimit)-1 {
		hi = int(escapeLimit) - 1
	}
	for k := lo; k <= hi; k++ {
		bits := partitionCost(sumAbs, n, k, paramLenBits)
		if bits < bestBits {
			bestBits = bits
			best = k
		}
	}
	return Partition{Param: uint32(best), Bits: bestBits}
}

// partitionCost implements the estimator from the format's compression
// guidance: PARAM_LEN + (1+k)*N + (sum_abs >> max(k-1,0)) - (k>0 ? N>>1 : 0).
func partitionCost(sumAbs uint64, n, k, paramLenBits int) float64 {
	shift := k - 1
	if shift < 0 {
		shift = 0
	}
	bits := float64(paramLenBits) + float64((1+k)*n) + float64(sumAbs>>uint(shift))
	if k > 0 {
		bits -= float64(n / 2)
	}
	return bits
}

func escapePartition(bits uint32, n int) Partition {
	return Partition{
		Escaped: true,
		RawBits: bits,
		Bits:    float64(paramLen4) + float64(rawBitsLen) + float64(bits)*float64(n),
	}
}

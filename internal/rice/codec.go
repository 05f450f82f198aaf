package rice

import "github.com/mewkiz/flac/internal/bitio"

// paramFieldWidth returns the bit width of a partition's parameter field
// for the given method (4 for PartitionedRice, 5 for PartitionedRice2).
func (m Method) paramFieldWidth() uint {
	if m == PartitionedRice2 {
		return 5
	}
	return 4
}

// Encode writes the 2-bit entropy method, 4-bit partition order, and every
// partition's parameter/raw-bits header plus residual samples, to w.
// residual must hold exactly blockSize-predOrder values as described by
// plan.
func Encode(w *bitio.Writer, plan Plan, residual []int32, predOrder, blockSize int) error {
	method := uint64(0)
	if plan.Method == PartitionedRice2 {
		method = 1
	}
	if err := w.WriteRawUint(method, 2); err != nil {
		return err
	}
	if err := w.WriteRawUint(uint64(plan.Order), 4); err != nil {
		return err
	}

	paramWidth := plan.Method.paramFieldWidth()
	escape := plan.Method.escapeLimit()
	idx := 0
	for i, part := range plan.Partitions {
		start, end := partitionBounds(plan.Order, predOrder, blockSize, i)
		count := end - start
		if part.Escaped {
			if err := w.WriteRawUint(uint64(escape), paramWidth); err != nil {
				return err
			}
			if err := w.WriteRawUint(uint64(part.RawBits), 5); err != nil {
				return err
			}
			for _, v := range residual[idx : idx+count] {
				if err := w.WriteRawInt(int64(v), uint(part.RawBits)); err != nil {
					return err
				}
			}
		} else {
			if err := w.WriteRawUint(uint64(part.Param), paramWidth); err != nil {
				return err
			}
			if err := w.WriteRiceSignedBlock(residual[idx:idx+count], uint(part.Param)); err != nil {
				return err
			}
		}
		idx += count
	}
	return nil
}

// Decode reads a partitioned-Rice-coded residual of blockSize-predOrder
// samples from r, given the method already read from the subframe's 2-bit
// entropy-method field (methodBit: 0 for PartitionedRice, 1 for
// PartitionedRice2).
func Decode(r *bitio.Reader, methodBit uint64, predOrder, blockSize int) ([]int32, error) {
	method := PartitionedRice
	if methodBit == 1 {
		method = PartitionedRice2
	}
	orderRaw, err := r.ReadRawUint(4)
	if err != nil {
		return nil, err
	}
	order := int(orderRaw)
	paramWidth := method.paramFieldWidth()
	escape := method.escapeLimit()

	out := make([]int32, blockSize-predOrder)
	idx := 0
	n := 1 << uint(order)
	for i := 0; i < n; i++ {
		start, end := partitionBounds(order, predOrder, blockSize, i)
		count := end - start
		param, err := r.ReadRawUint(paramWidth)
		if err != nil {
			return nil, err
		}
		if uint32(param) == escape {
			rawBits, err := r.ReadRawUint(5)
			if err != nil {
				return nil, err
			}
			for j := 0; j < count; j++ {
				v, err := r.ReadRawInt(uint(rawBits))
				if err != nil {
					return nil, err
				}
				out[idx+j] = int32(v)
			}
		} else {
			if err := r.ReadRiceSignedBlock(out[idx:idx+count], uint(param)); err != nil {
				return nil, err
			}
		}
		idx += count
	}
	return out, nil
}

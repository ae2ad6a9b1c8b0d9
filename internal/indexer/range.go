package indexer

import "fmt"

// MaxWindowSize is the largest block span queried in one eth_getLogs call.
const MaxWindowSize uint64 = 500

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange splits an inclusive block range into consecutive windows of at
// most windowSize blocks. The windows cover the range without gaps.
func SplitRange(from, to, windowSize uint64) ([]BlockRange, error) {
	if windowSize == 0 {
		return nil, fmt.Errorf("window size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/windowSize+1)
	for start := from; ; {
		end := to
		if to-start >= windowSize {
			end = start + windowSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}

// ClampWindow bounds a configured window size to (0, MaxWindowSize].
func ClampWindow(size uint64) uint64 {
	if size == 0 || size > MaxWindowSize {
		return MaxWindowSize
	}
	return size
}

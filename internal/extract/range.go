package extract

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// SelectRange picks the blocks to scan for one run.
// With a watermark the scan restarts one block below it; without one it looks
// back a fixed window. The head block itself is left for the next run.
// ok is false when there is nothing to scan.
func SelectRange(watermark uint64, hasWatermark bool, head uint64, lookback uint64) (BlockRange, bool) {
	if head == 0 {
		return BlockRange{}, false
	}
	to := head - 1

	var from uint64
	if hasWatermark {
		if watermark > 0 {
			from = watermark - 1
		}
	} else if head > lookback {
		from = head - lookback
	}

	if from > to {
		return BlockRange{From: from, To: to}, false
	}
	return BlockRange{From: from, To: to}, true
}

// Len returns the number of blocks in r.
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// Batches cuts r into consecutive eth_getLogs windows of at most size blocks.
func (r BlockRange) Batches(size uint64) ([]BlockRange, error) {
	if size == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if r.To < r.From {
		return nil, fmt.Errorf("invalid block range %d..%d", r.From, r.To)
	}

	var out []BlockRange
	for from := r.From; ; from += size {
		if r.To-from < size {
			return append(out, BlockRange{From: from, To: r.To}), nil
		}
		out = append(out, BlockRange{From: from, To: from + size - 1})
	}
}

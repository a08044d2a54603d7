package monitor

// BlockRange is an inclusive range of Ethereum block heights.
type BlockRange struct {
	From uint
	To   uint
}

// PollWindow picks the blocks one poll scans. It starts at the stored head
// and stops one block short of the new head, which the next poll scans
// again. The new head trails the chain by the finality range and moves at
// most queryRange blocks. ok is false until two new blocks are final.
func PollWindow(storedHead, chainHead, finality, queryRange uint) (scan BlockRange, newHead uint, ok bool) {
	var safeHeight uint
	if chainHead > finality {
		safeHeight = chainHead - finality
	}
	newHead = storedHead + queryRange
	if newHead > safeHeight {
		newHead = safeHeight
	}
	if newHead == 0 || storedHead >= newHead-1 {
		return BlockRange{}, 0, false
	}
	return BlockRange{From: storedHead, To: newHead - 1}, newHead, true
}

// Split cuts r into consecutive ranges of at most maxSize blocks, for nodes
// that cap eth_getLogs ranges. A zero maxSize keeps r whole.
func (r BlockRange) Split(maxSize uint) []BlockRange {
	if r.From > r.To {
		return []BlockRange{}
	}
	if maxSize == 0 {
		return []BlockRange{r}
	}
	res := make([]BlockRange, 0, (r.To-r.From)/maxSize+1)
	for from := r.From; from <= r.To; from += maxSize {
		to := from + maxSize - 1
		if to >= r.To {
			res = append(res, BlockRange{From: from, To: r.To})
			break
		}
		res = append(res, BlockRange{From: from, To: to})
	}
	return res
}

package txbuilder

import (
	"math/rand"
	"sort"

	"github.com/dan/btc-wallet-core/utxoset"
)

// CoinSelectionStrategy picks which spendable UTXOs a build consumes.
type CoinSelectionStrategy int

const (
	LargestFirst CoinSelectionStrategy = iota
	SmallestFirst
	BranchAndBound
	Random
)

// tieBreak orders equal-value UTXOs by (txid ascending, vout ascending) so
// every strategy selects deterministically.
func tieBreak(a, b utxoset.UTXO) bool {
	if a.Outpoint.Txid != b.Outpoint.Txid {
		return a.Outpoint.Txid < b.Outpoint.Txid
	}
	return a.Outpoint.Vout < b.Outpoint.Vout
}

func orderCandidates(strategy CoinSelectionStrategy, candidates []utxoset.UTXO, randomSeed int64) []utxoset.UTXO {
	ordered := make([]utxoset.UTXO, len(candidates))
	copy(ordered, candidates)

	switch strategy {
	case LargestFirst:
		sort.SliceStable(ordered, func(i, j int) bool {
			if ordered[i].Value != ordered[j].Value {
				return ordered[i].Value > ordered[j].Value
			}
			return tieBreak(ordered[i], ordered[j])
		})
	case SmallestFirst:
		sort.SliceStable(ordered, func(i, j int) bool {
			if ordered[i].Value != ordered[j].Value {
				return ordered[i].Value < ordered[j].Value
			}
			return tieBreak(ordered[i], ordered[j])
		})
	case Random:
		sort.SliceStable(ordered, func(i, j int) bool { return tieBreak(ordered[i], ordered[j]) })
		rnd := rand.New(rand.NewSource(randomSeed))
		rnd.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	default:
		sort.SliceStable(ordered, func(i, j int) bool { return tieBreak(ordered[i], ordered[j]) })
	}

	return ordered
}

// accumulate adds UTXOs in the given order, after each addition
// recomputing the vsize estimate and current fee, and stops once the
// accumulated value covers the target plus that fee.
func accumulate(ordered []utxoset.UTXO, targetOut, feeRate, baseVsize int64, inputVsize func(utxoset.UTXO) int64, outputVsize int64) ([]utxoset.UTXO, int64, int64, error) {
	var selected []utxoset.UTXO
	var sumIn int64
	estVsize := baseVsize + outputVsize
	feeCurrent := ceilFee(feeRate, estVsize)

	for _, u := range ordered {
		selected = append(selected, u)
		sumIn += u.Value
		estVsize = baseVsize + outputVsize
		for _, s := range selected {
			estVsize += inputVsize(s)
		}
		feeCurrent = ceilFee(feeRate, estVsize)
		if sumIn >= targetOut+feeCurrent {
			return selected, feeCurrent, estVsize, nil
		}
	}

	return nil, 0, 0, insufficientFundsErr(sumIn, targetOut+feeCurrent)
}

// branchAndBound searches for the subset of candidates that covers
// target_out plus fee with no leftover (preferring exact matches that let
// change be skipped), falling back to the combination with the smallest
// leftover. Exhaustive for up to 20 candidates; beyond that it falls back to
// the largest-first accumulation, since an exhaustive search becomes
// impractical.
func branchAndBound(candidates []utxoset.UTXO, targetOut, feeRate, baseVsize int64, inputVsize func(utxoset.UTXO) int64, outputVsize, changeOutputVsize, changeDust int64) ([]utxoset.UTXO, int64, int64, error) {
	if len(candidates) > 20 {
		ordered := orderCandidates(LargestFirst, candidates, 0)
		return accumulate(ordered, targetOut, feeRate, baseVsize, inputVsize, outputVsize)
	}

	ordered := make([]utxoset.UTXO, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool { return tieBreak(ordered[i], ordered[j]) })

	type combo struct {
		subset      []utxoset.UTXO
		vsize       int64
		fee         int64
		sum         int64
		leftover    int64
		needsChange bool
	}
	var best *combo

	n := len(ordered)
	for mask := 1; mask < (1 << n); mask++ {
		var subset []utxoset.UTXO
		var sum int64
		var inVsize int64
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, ordered[i])
				sum += ordered[i].Value
				inVsize += inputVsize(ordered[i])
			}
		}

		var candidate *combo

		// Try without change first.
		vsizeNoChange := baseVsize + outputVsize + inVsize
		feeNoChange := ceilFee(feeRate, vsizeNoChange)
		if sum >= targetOut+feeNoChange && sum-targetOut-feeNoChange < changeDust {
			candidate = &combo{subset: subset, vsize: vsizeNoChange, fee: feeNoChange, sum: sum, leftover: sum - targetOut - feeNoChange, needsChange: false}
		} else {
			// Try with a change output.
			vsizeChange := baseVsize + outputVsize + changeOutputVsize + inVsize
			feeChange := ceilFee(feeRate, vsizeChange)
			if sum >= targetOut+feeChange {
				candidate = &combo{subset: subset, vsize: vsizeChange, fee: feeChange, sum: sum, leftover: sum - targetOut - feeChange, needsChange: true}
			}
		}

		if candidate == nil {
			continue
		}
		switch {
		case best == nil:
			best = candidate
		case !candidate.needsChange && best.needsChange:
			best = candidate
		case candidate.needsChange == best.needsChange && candidate.leftover < best.leftover:
			best = candidate
		}
	}

	if best == nil {
		return nil, 0, 0, insufficientFundsErr(totalValue(ordered), targetOut)
	}
	return best.subset, best.fee, best.vsize, nil
}

func totalValue(utxos []utxoset.UTXO) int64 {
	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}

// SelectCoins runs strategy over candidates, returning the selected UTXOs,
// the resulting fee, and the estimated vsize.
func SelectCoins(strategy CoinSelectionStrategy, candidates []utxoset.UTXO, targetOut, feeRate, baseVsize int64, inputVsize func(utxoset.UTXO) int64, outputVsize, changeOutputVsize, changeDust, randomSeed int64) ([]utxoset.UTXO, int64, int64, error) {
	if strategy == BranchAndBound {
		return branchAndBound(candidates, targetOut, feeRate, baseVsize, inputVsize, outputVsize, changeOutputVsize, changeDust)
	}
	ordered := orderCandidates(strategy, candidates, randomSeed)
	return accumulate(ordered, targetOut, feeRate, baseVsize, inputVsize, outputVsize)
}

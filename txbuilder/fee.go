package txbuilder

// FeeStrategyKind selects how a build resolves its sat/vB fee rate.
type FeeStrategyKind int

const (
	FixedFeeRate FeeStrategyKind = iota
	ConfirmationTarget
	LowPriority
	Normal
	HighPriority
)

// FeeStrategy picks the fee rate a build uses. FeeRate is read only for
// FixedFeeRate; TargetBlocks only for ConfirmationTarget.
type FeeStrategy struct {
	Kind         FeeStrategyKind
	FeeRate      int64
	TargetBlocks int
}

// FixedFee returns a strategy pinned to an explicit sat/vB rate.
func FixedFee(satPerVByte int64) FeeStrategy {
	return FeeStrategy{Kind: FixedFeeRate, FeeRate: satPerVByte}
}

// ByConfirmationTarget resolves a rate from a target confirmation window.
func ByConfirmationTarget(blocks int) FeeStrategy {
	return FeeStrategy{Kind: ConfirmationTarget, TargetBlocks: blocks}
}

// LowFee, NormalFee and HighFee are the named presets: 5, 20, 50 sat/vB.
func LowFee() FeeStrategy    { return FeeStrategy{Kind: LowPriority} }
func NormalFee() FeeStrategy { return FeeStrategy{Kind: Normal} }
func HighFee() FeeStrategy   { return FeeStrategy{Kind: HighPriority} }

// ResolveRate maps the strategy to a concrete sat/vB rate. Target-block
// mapping: 1-2 blocks -> 50, 3-6 -> 20, else -> 10.
func (s FeeStrategy) ResolveRate() int64 {
	switch s.Kind {
	case FixedFeeRate:
		return s.FeeRate
	case LowPriority:
		return 5
	case Normal:
		return 20
	case HighPriority:
		return 50
	case ConfirmationTarget:
		switch {
		case s.TargetBlocks >= 1 && s.TargetBlocks <= 2:
			return 50
		case s.TargetBlocks >= 3 && s.TargetBlocks <= 6:
			return 20
		default:
			return 10
		}
	default:
		return 0
	}
}

// ceilFee computes the fee for vsize at feeRate. Both operands are whole
// sat/vB and vB, so the product is already exact.
func ceilFee(feeRate, vsize int64) int64 {
	return feeRate * vsize
}

package gl

// Chart is the fixed set of GL account codes the subledger posts to. It is
// initialized once at startup from configuration; the defaults match the
// standard chart.
type Chart struct {
	// Balance sheet
	Cash          int32 // cash
	SecurityAsset int32 // securities at cost
	Revaluation   int32 // revaluation reserve (MTM level)

	// P&L
	RealizedPnL   int32 // realised gains/losses on sales
	UnrealizedPnL int32 // unrealised MTM
}

// DefaultChart returns the standard account codes.
func DefaultChart() Chart {
	return Chart{
		Cash:          100000,
		SecurityAsset: 200100,
		RealizedPnL:   300100,
		UnrealizedPnL: 400100,
		Revaluation:   400200,
	}
}

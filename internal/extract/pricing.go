package extract

// ModelPrice holds USD rates per 1M tokens.
type ModelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// pricing as of 2025. Unknown models fall back to the primary tier so a
// cost is always attributed.
var pricing = map[string]ModelPrice{
	"gpt-4o-mini": {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4o":      {InputPerMTok: 2.50, OutputPerMTok: 10.00},
}

// Cost computes the USD cost of one completion.
func Cost(model string, tokensIn, tokensOut int) float64 {
	p, ok := pricing[model]
	if !ok {
		p = pricing["gpt-4o-mini"]
	}
	return (float64(tokensIn)*p.InputPerMTok + float64(tokensOut)*p.OutputPerMTok) / 1_000_000
}

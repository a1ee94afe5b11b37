package knowledge

// Type classifies a knowledge item into exactly one category. The
// category is fixed at creation time; items are never reclassified.
type Type int

const (
	Factual     Type = iota // facts about the world
	Procedural              // how to perform actions
	Episodic                // experience memories
	Semantic                // concept relationships
	Conditional             // if-then rules
	Temporal                // time-based knowledge
)

// String returns the category name used in stats and exports.
func (t Type) String() string {
	switch t {
	case Factual:
		return "factual"
	case Procedural:
		return "procedural"
	case Episodic:
		return "episodic"
	case Semantic:
		return "semantic"
	case Conditional:
		return "conditional"
	case Temporal:
		return "temporal"
	default:
		return "unknown"
	}
}

// prefix is the label prefix for stored items of this type.
func (t Type) prefix() string {
	switch t {
	case Factual:
		return "Fact_"
	case Procedural:
		return "Proc_"
	case Episodic:
		return "Episode_"
	case Semantic:
		return "Semantic_"
	case Conditional:
		return "Rule_"
	case Temporal:
		return "Temporal_"
	default:
		return "Item_"
	}
}

// allTypes lists every category in declaration order.
var allTypes = []Type{Factual, Procedural, Episodic, Semantic, Conditional, Temporal}

// ConfidenceLevel expresses caller-supplied trust in an assertion.
// Values map linearly onto truth-value strength.
type ConfidenceLevel int

const (
	VeryLow  ConfidenceLevel = 0
	Low      ConfidenceLevel = 25
	Medium   ConfidenceLevel = 50
	High     ConfidenceLevel = 75
	VeryHigh ConfidenceLevel = 100
)

// Strength converts the level to a truth-value strength in [0,1].
func (c ConfidenceLevel) Strength() float64 { return float64(c) / 100.0 }

// String returns the level name.
func (c ConfidenceLevel) String() string {
	switch c {
	case VeryLow:
		return "very_low"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case VeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

// LevelFromConfidence buckets a confidence float into a level.
func LevelFromConfidence(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.9:
		return VeryHigh
	case confidence >= 0.7:
		return High
	case confidence >= 0.4:
		return Medium
	case confidence >= 0.2:
		return Low
	default:
		return VeryLow
	}
}

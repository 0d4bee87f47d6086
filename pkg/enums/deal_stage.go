package enums

import "fmt"

// DealStage is the pipeline stage of a CRM deal.
type DealStage string

const (
	DealStageProspecting   DealStage = "prospecting"
	DealStageQualification DealStage = "qualification"
	DealStageProposal      DealStage = "proposal"
	DealStageNegotiation   DealStage = "negotiation"
	DealStageClosedWon     DealStage = "closed_won"
	DealStageClosedLost    DealStage = "closed_lost"
)

var validDealStages = []DealStage{
	DealStageProspecting,
	DealStageQualification,
	DealStageProposal,
	DealStageNegotiation,
	DealStageClosedWon,
	DealStageClosedLost,
}

// String implements fmt.Stringer.
func (s DealStage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DealStage.
func (s DealStage) IsValid() bool {
	for _, candidate := range validDealStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseDealStage converts raw input into a DealStage.
func ParseDealStage(value string) (DealStage, error) {
	for _, candidate := range validDealStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deal stage %q", value)
}

package flagging

import "strings"

type Reason string

const (
	ReasonSpam       Reason = "spam"
	ReasonMisleading Reason = "misleading"
	ReasonExplicit   Reason = "explicit"
	ReasonAbusive    Reason = "abusive"
	ReasonMalware    Reason = "malware"
	ReasonOther      Reason = "other"
)

// weights is the static severity table consulted when a flag moves the
// cumulative weight of a website. Flag count tracks unique flaggers; this
// table only shapes the weighted view.
var weights = map[Reason]float64{
	ReasonSpam:       1,
	ReasonMisleading: 2,
	ReasonExplicit:   3,
	ReasonAbusive:    4,
	ReasonMalware:    5,
	ReasonOther:      1,
}

func Known(reason Reason) bool {
	_, ok := weights[reason]
	return ok
}

func Weight(reason Reason) float64 {
	return weights[reason]
}

func Normalize(reason string) Reason {
	return Reason(strings.ToLower(strings.TrimSpace(reason)))
}

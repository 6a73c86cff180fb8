package models

type TrialStatus string

const (
	TrialOK   TrialStatus = "ok"
	TrialFail TrialStatus = "fail"
)

// TrialResult is the outcome of one objective evaluation. Loss is set only
// when Status is TrialOK.
type TrialResult struct {
	Status TrialStatus
	Loss   *float64
}

func TrialSucceeded(loss float64) TrialResult {
	return TrialResult{Status: TrialOK, Loss: &loss}
}

func TrialFailed() TrialResult {
	return TrialResult{Status: TrialFail}
}

// LossValue returns the loss and whether it is defined.
func (r TrialResult) LossValue() (float64, bool) {
	if r.Status != TrialOK || r.Loss == nil {
		return 0, false
	}
	return *r.Loss, true
}

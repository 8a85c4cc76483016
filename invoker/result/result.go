package result

import (
	"grading_system/common/constants/verdict"
	"grading_system/lib/customfields"
)

// Result is the outcome of grading one test case
type Result struct {
	Flag   verdict.Flag `json:"Flag"`
	Points int          `json:"Points"`

	// ProcOutput is the head of submission output, it is not shown when HideOutput is set
	ProcOutput       []byte `json:"ProcOutput,omitempty"`
	Feedback         string `json:"Feedback,omitempty"`
	ExtendedFeedback string `json:"ExtendedFeedback,omitempty"`
	HideOutput       bool   `json:"HideOutput"`

	Time     customfields.Time   `json:"Time"`
	WallTime customfields.Time   `json:"WallTime"`
	Memory   customfields.Memory `json:"Memory"`
}

func Accepted(points int) *Result {
	return &Result{Flag: verdict.AC, Points: points}
}

func Wrong(feedback string) *Result {
	return &Result{Flag: verdict.WA, Feedback: feedback}
}

func InternalError(feedback string, extended string) *Result {
	return &Result{
		Flag:             verdict.IE,
		Feedback:         feedback,
		ExtendedFeedback: extended,
	}
}

// Add unions verdict bits of other into r. Feedback of r is kept unless it is empty.
func (r *Result) Add(other *Result) {
	if other == nil {
		return
	}
	r.Flag |= other.Flag
	if r.Feedback == "" {
		r.Feedback = other.Feedback
	}
	if r.ExtendedFeedback == "" {
		r.ExtendedFeedback = other.ExtendedFeedback
	}
	r.Time = max(r.Time, other.Time)
	r.WallTime = max(r.WallTime, other.WallTime)
	r.Memory = max(r.Memory, other.Memory)
}

// Finalize clamps points to [0, casePoints] and sets display suppression
func (r *Result) Finalize(casePoints int) *Result {
	r.Points = min(max(r.Points, 0), max(casePoints, 0))
	r.HideOutput = r.Flag == verdict.AC
	return r
}

// Aggregate folds partial results of one case into a final one
func Aggregate(casePoints int, parts ...*Result) *Result {
	final := &Result{}
	pointsSet := false
	for _, part := range parts {
		if part == nil {
			continue
		}
		final.Add(part)
		if !pointsSet {
			final.Points = part.Points
			pointsSet = true
		}
		if final.ProcOutput == nil {
			final.ProcOutput = part.ProcOutput
		}
	}
	return final.Finalize(casePoints)
}

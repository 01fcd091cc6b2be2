package app

import "exam-session-service/internal/domain"

// aggregator holds the submissions made against the active exam, oldest first.
type aggregator struct {
	examID      string
	submissions []domain.Submission
}

func (a *aggregator) reset(examID string, existing []domain.Submission) {
	a.examID = examID
	a.submissions = append([]domain.Submission(nil), existing...)
}

func (a *aggregator) add(sub domain.Submission) {
	a.submissions = append(a.submissions, sub)
}

// remove drops the given ids and reports how many were held.
func (a *aggregator) remove(ids []string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := a.submissions[:0]
	removed := 0
	for _, sub := range a.submissions {
		if _, ok := drop[sub.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	a.submissions = kept
	return removed
}

// clear empties the list for the current exam and reports how many were held.
func (a *aggregator) clear() int {
	n := len(a.submissions)
	a.submissions = nil
	return n
}

// summaries projects the held submissions for examID. Any other exam id
// yields an empty list: the view is scoped to the active exam.
func (a *aggregator) summaries(examID string, newestFirst bool) []domain.SubmissionSummary {
	out := make([]domain.SubmissionSummary, 0, len(a.submissions))
	if examID == "" || examID != a.examID {
		return out
	}
	for _, sub := range a.submissions {
		out = append(out, sub.Summary())
	}
	if newestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

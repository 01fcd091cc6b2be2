package domain

// Score counts the questions in key that answers maps to the identical choice.
// Answers for unknown question ids are ignored and missing answers score zero.
func Score(key AnswerKey, answers map[string]string) int {
	score := 0
	for qid, correct := range key {
		if given, ok := answers[qid]; ok && given == string(correct) {
			score++
		}
	}
	return score
}

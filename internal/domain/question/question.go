package question

// Question is read-only reference data served during quizzes.
// Option indices are 1-based (1..4), rendered to users as A-D.
type Question struct {
	ID           int64  `json:"id"`
	SubjectID    int64  `json:"subject_id"`
	Lesson       *int   `json:"lesson,omitempty"`
	Term         string `json:"term,omitempty"`
	IsExamTarget bool   `json:"is_exam_target"`
	Prompt       string `json:"prompt"`
	Answer1      string `json:"answer_1"`
	Answer2      string `json:"answer_2"`
	Answer3      string `json:"answer_3"`
	Answer4      string `json:"answer_4"`
	Correct      int    `json:"correct"`
	Explanation  string `json:"explanation,omitempty"`
}

// Option returns the 1-based option text, or "" for an unknown index.
func (q Question) Option(idx int) string {
	switch idx {
	case 1:
		return q.Answer1
	case 2:
		return q.Answer2
	case 3:
		return q.Answer3
	case 4:
		return q.Answer4
	}
	return ""
}

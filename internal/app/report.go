package app

import (
	"fmt"
	"strings"

	"mcq_practice_bot/internal/domain/session"
)

// BuildReviewDocument renders a finished run as a plain-text review
// sheet, one block per served question with the chosen and correct
// options spelled out.
func BuildReviewDocument(run *session.QuizRun) string {
	var b strings.Builder

	if run.Mode == session.ModeWeekly {
		b.WriteString(fmt.Sprintf("Weekly Paper Review - %s stream\n", run.Stream))
		b.WriteString(fmt.Sprintf("Cycle: %s\n", run.CycleStart.Format("2006-01-02")))
	} else {
		b.WriteString(fmt.Sprintf("Practice Review - %s\n", subjectLabel(run.SubjectID)))
	}
	b.WriteString(fmt.Sprintf("Score: %d/%d\n", run.Score, len(run.Questions)))
	if run.GaveUp {
		b.WriteString("Ended early.\n")
	}
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	for i, ans := range run.Answers {
		if i >= len(run.Questions) {
			break
		}
		q := run.Questions[i]
		b.WriteString(fmt.Sprintf("Q%d. %s\n", i+1, q.Prompt))
		for opt := 1; opt <= 4; opt++ {
			marker := " "
			if opt == ans.Correct {
				marker = "✓"
			}
			b.WriteString(fmt.Sprintf("  %s %s) %s\n", marker, answerLabel(opt), q.Option(opt)))
		}
		if ans.Chosen != nil {
			verdict := "wrong"
			if ans.IsCorrect {
				verdict = "correct"
			}
			b.WriteString(fmt.Sprintf("  Your answer: %s (%s)\n", answerLabel(*ans.Chosen), verdict))
		} else {
			b.WriteString("  Not answered.\n")
		}
		if q.Explanation != "" {
			b.WriteString(fmt.Sprintf("  Explanation: %s\n", q.Explanation))
		}
		b.WriteString("\n")
	}

	return b.String()
}

package extract

import (
	"regexp"
	"strings"
)

// QAPair is one question/answer pair found in a submission.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"student_answer"`
}

var questionPattern = regexp.MustCompile(`(?i)^\s*(?:Question\s*\d+|Q\d+|Q|Qus|Ques)\s*[:.)]`)

// FallbackQAPairs is the regex safety net behind the LLM extractor: it only
// recognizes explicit Q/A structure and never guesses questions from prose.
func FallbackQAPairs(text string) []QAPair {
	var pairs []QAPair
	var currentQuestion string
	var answerLines []string

	flush := func() {
		if currentQuestion == "" {
			return
		}
		pairs = append(pairs, QAPair{
			Question: currentQuestion,
			Answer:   strings.TrimSpace(strings.Join(answerLines, "\n")),
		})
	}

	for _, line := range strings.Split(text, "\n") {
		if questionPattern.MatchString(line) {
			flush()
			currentQuestion = strings.TrimSpace(questionPattern.ReplaceAllString(line, ""))
			answerLines = nil
			continue
		}
		answerLines = append(answerLines, strings.TrimRight(line, " \t"))
	}
	flush()

	return pairs
}

var namePattern = regexp.MustCompile(`(?im)^\s*(?:name|student\s*name|submitted\s*by)\s*[:\-]\s*(.+)$`)

// StudentName pulls a declared student name out of the submission text,
// returning empty when none is present.
func StudentName(text string) string {
	match := namePattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}

	name := strings.TrimSpace(match[1])
	if len(name) > 120 {
		return ""
	}
	return name
}

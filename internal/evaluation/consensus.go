package evaluation

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/acadex/acadex-api/internal/config"
	"github.com/acadex/acadex-api/pkg/ai"
)

// judgmentSchema constrains the structured output of a question evaluation.
var judgmentSchema = ai.MustCompileSchema("judgment", `{
	"type": "object",
	"properties": {
		"question": {"type": "string"},
		"student_answer": {"type": "string"},
		"correct_answer": {"type": "string"},
		"is_correct": {"type": "boolean"},
		"partial_credit": {"type": ["number", "null"], "minimum": 0, "maximum": 1},
		"max_marks": {"type": "number"},
		"feedback": {"type": "string"}
	},
	"required": ["question", "student_answer", "correct_answer", "is_correct", "feedback"]
}`)

// QuestionContext carries the grading-relevant inputs for one question.
// Index is 1-based and part of the fingerprint: the same question text can
// repeat across positions with different surrounding context.
type QuestionContext struct {
	Rubric   string
	Question string
	Answer   string
	Index    int
}

func (qc QuestionContext) fingerprint() string {
	return Fingerprint(qc.Rubric, qc.Question, qc.Answer, strconv.Itoa(qc.Index))
}

// ConsensusEvaluator turns N independent model judgments for the same
// question into one chosen judgment via deterministic majority vote. A single
// call at temperature 0 can still diverge at decision boundaries; voting
// removes that residual randomness from production grades.
type ConsensusEvaluator struct {
	caller  ai.Caller
	cache   *ResultCache
	enabled bool
	calls   int
	logger  zerolog.Logger
}

// NewConsensusEvaluator builds the evaluator from the process-wide
// determinism settings.
func NewConsensusEvaluator(caller ai.Caller, cache *ResultCache, eval config.Determinism, logger zerolog.Logger) *ConsensusEvaluator {
	return &ConsensusEvaluator{
		caller:  caller,
		cache:   cache,
		enabled: eval.ConsensusEnabled,
		calls:   eval.ConsensusCalls,
		logger:  logger.With().Str("component", "consensus_evaluator").Logger(),
	}
}

// EvaluateQuestion grades one question, consulting the cache first and voting
// across parallel calls on a miss. The returned judgment's feedback travels
// with it; feedback is never synthesized or merged across calls.
func (e *ConsensusEvaluator) EvaluateQuestion(ctx context.Context, qc QuestionContext) (Judgment, *ai.CallError) {
	fingerprint := qc.fingerprint()

	if cached, ok := e.cache.Get(ctx, fingerprint, KindQAEvaluation); ok {
		var judgment Judgment
		if err := json.Unmarshal(cached, &judgment); err == nil {
			return judgment, nil
		}
		e.logger.Warn().Str("fingerprint", shortHash(fingerprint)).Msg("discarding unreadable cached judgment")
	}

	judgment, callErr := e.EvaluateQuestionUncached(ctx, qc)
	if callErr != nil {
		return Judgment{}, callErr
	}

	e.cache.Set(ctx, fingerprint, KindQAEvaluation, judgment)
	return judgment, nil
}

// EvaluateQuestionUncached grades one question without consulting or filling
// the cache. The determinism self-test uses it to observe raw model variance.
func (e *ConsensusEvaluator) EvaluateQuestionUncached(ctx context.Context, qc QuestionContext) (Judgment, *ai.CallError) {
	req := ai.Request{
		Operation: "qa-evaluation",
		Parts:     []ai.Part{ai.TextPart(buildJudgmentPrompt(qc))},
		Schema:    judgmentSchema,
	}

	if !e.enabled || e.calls < 2 {
		return e.singleCall(ctx, req)
	}

	results := make([]ai.Result, e.calls)
	var wg sync.WaitGroup
	for i := 0; i < e.calls; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot] = e.caller.Call(ctx, req)
		}(i)
	}
	wg.Wait()

	judgments := make([]Judgment, 0, e.calls)
	for _, res := range results {
		if !res.OK {
			continue
		}
		var judgment Judgment
		if err := res.Decode(&judgment); err != nil {
			continue
		}
		judgments = append(judgments, judgment)
	}

	if len(judgments) == 0 {
		// Propagate the first call's failure verbatim: a synthesized error
		// would hide the root cause.
		return Judgment{}, results[0].Err
	}

	votes := make([]float64, len(judgments))
	for i, judgment := range judgments {
		votes[i] = QuantizeVote(judgment)
	}

	winner := WinningVote(votes)
	e.logger.Debug().
		Floats64("votes", votes).
		Float64("winner", winner).
		Int("question_index", qc.Index).
		Msg("consensus vote complete")

	chosen := judgments[0]
	for _, judgment := range judgments {
		if QuantizeVote(judgment) == winner {
			chosen = judgment
			break
		}
	}

	return chosen, nil
}

func (e *ConsensusEvaluator) singleCall(ctx context.Context, req ai.Request) (Judgment, *ai.CallError) {
	res := e.caller.Call(ctx, req)
	if !res.OK {
		return Judgment{}, res.Err
	}

	var judgment Judgment
	if err := res.Decode(&judgment); err != nil {
		return Judgment{}, &ai.CallError{
			Kind:    ai.KindParseError,
			Message: "failed to decode judgment",
			Raw:     err.Error(),
		}
	}

	return judgment, nil
}

// QuantizeVote buckets a judgment into one of the three vote values
// {0.0, 0.5, 1.0}.
func QuantizeVote(j Judgment) float64 {
	if j.IsCorrect {
		return 1.0
	}
	if j.PartialCredit == nil {
		return 0.0
	}
	credit := *j.PartialCredit
	switch {
	case credit >= 0.75:
		return 1.0
	case credit >= 0.25:
		return 0.5
	default:
		return 0.0
	}
}

// WinningVote picks the plurality winner from quantized votes. When the two
// most frequent values tie on count, the numerically higher value wins: the
// student gets the benefit of the doubt. A full three-way tie reduces to the
// same rule applied to the top two entries ranked by count then value.
func WinningVote(votes []float64) float64 {
	counts := map[float64]int{}
	for _, vote := range votes {
		counts[vote]++
	}

	type tally struct {
		value float64
		count int
	}
	ranked := make([]tally, 0, len(counts))
	for value, count := range counts {
		ranked = append(ranked, tally{value: value, count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].value > ranked[j].value
	})

	if len(ranked) > 1 && ranked[0].count == ranked[1].count {
		if ranked[1].value > ranked[0].value {
			return ranked[1].value
		}
	}

	return ranked[0].value
}

// JudgmentSchema returns the structured-output schema for a single judgment.
func JudgmentSchema() *ai.Schema { return judgmentSchema }

// JudgmentPrompt renders the grading prompt for one question. Repository
// grading reuses it with the synthetic whole-document question.
func JudgmentPrompt(qc QuestionContext) string { return buildJudgmentPrompt(qc) }

func buildJudgmentPrompt(qc QuestionContext) string {
	var b strings.Builder
	b.WriteString("### ROLE: You are a strict and consistent academic grader.\n")
	b.WriteString("Evaluate the student's answer based ONLY on the provided rubric and question.\n\n")
	b.WriteString("### ASSIGNMENT DESCRIPTION/RUBRIC:\n")
	b.WriteString(qc.Rubric)
	b.WriteString("\n\n### QUESTION NUMBER: ")
	b.WriteString(strconv.Itoa(qc.Index))
	b.WriteString("\n### QUESTION:\n")
	b.WriteString(qc.Question)
	b.WriteString("\n\n### STUDENT ANSWER:\n")
	b.WriteString(qc.Answer)
	b.WriteString("\n\n### GRADING PROCESS (STEP-BY-STEP):\n")
	b.WriteString("1. Check if the rubric assigns specific marks to this question (e.g. \"5 marks\", \"10 points\").\n")
	b.WriteString("   - If YES: set max_marks to this value and grade strictly out of those points, converting the result to a 0.0-1.0 scale.\n")
	b.WriteString("   - If NO: set max_marks to 1.0.\n")
	b.WriteString("2. Compare the student answer against the question requirements: exactness, logic, syntax (for code), completeness.\n")
	b.WriteString("3. Determine the score:\n")
	b.WriteString("   - 1.0: fully correct, meets all requirements.\n")
	b.WriteString("   - 0.5: partially correct, minor errors or roughly half the requirements covered.\n")
	b.WriteString("   - 0.0: wrong, irrelevant, or broken.\n")
	b.WriteString("   - If specific marks were used, map the ratio to the nearest bucket (0.0, 0.25, 0.5, 0.75, 1.0) in partial_credit.\n\n")
	b.WriteString("### DETERMINISTIC RULES (NON-NEGOTIABLE):\n")
	b.WriteString("- Code with syntax errors or security risks scores 0.0.\n")
	b.WriteString("- The same input MUST yield the same score. Do not be generous or random.\n")
	b.WriteString("- An answer unrelated to the question scores 0.0.\n")
	b.WriteString("- Do not invent criteria not present in the rubric.\n\n")
	b.WriteString("### FEEDBACK REQUIREMENTS:\n")
	b.WriteString("- Provide the exact correct answer in correct_answer.\n")
	b.WriteString("- Explain precisely why points were deducted in feedback.\n")
	b.WriteString("- Return ONLY a JSON object with keys: question, student_answer, correct_answer, is_correct, partial_credit, max_marks, feedback.\n")
	return b.String()
}

// SyntheticQuestion is the fallback question used when no explicit Q&A
// structure is found in a submission, so every submission receives at least
// one judgment.
const SyntheticQuestion = "Evaluate the submitted assignment/code strictly against the provided requirements/description."

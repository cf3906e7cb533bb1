package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/freshcart/support-agent/internal/agent/model"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

// Responder is the surface the evaluator drives; satisfied by the
// orchestrator.
type Responder interface {
	HandleMessage(ctx context.Context, sessionID, message string) (*model.Reply, error)
}

// Config tunes an evaluation run.
type Config struct {
	CasesPath   string `envconfig:"EVAL_CASES_PATH" default:"data/eval_cases.json"`
	Concurrency int    `envconfig:"EVAL_CONCURRENCY" default:"4"`
}

// Case is one ground-truth evaluation entry.
type Case struct {
	ID               string   `json:"id"`
	Question         string   `json:"question"`
	ExpectedKeywords []string `json:"expected_keywords,omitempty"`
	ReferenceAnswer  string   `json:"reference_answer,omitempty"`
	ExpectedIntent   string   `json:"expected_intent,omitempty"`
}

// Result captures one evaluated case.
type Result struct {
	CaseID        string  `json:"case_id"`
	Question      string  `json:"question"`
	Response      string  `json:"response"`
	Agent         string  `json:"agent"`
	Intent        string  `json:"intent"`
	IntentMatched *bool   `json:"intent_matched,omitempty"`
	KeywordScore  float64 `json:"keyword_score"`
	F1Score       float64 `json:"f1_score"`
	FinalScore    float64 `json:"final_score"`
	Passed        bool    `json:"passed"`
	LatencyMS     int64   `json:"latency_ms"`
	Error         string  `json:"error,omitempty"`
}

// Report aggregates a full run.
type Report struct {
	TotalCases   int      `json:"total_cases"`
	Passed       int      `json:"passed"`
	Failed       int      `json:"failed"`
	PassRate     float64  `json:"pass_rate"`
	AverageScore float64  `json:"average_score"`
	AvgLatencyMS int64    `json:"avg_latency_ms"`
	Results      []Result `json:"results"`
}

// Evaluator runs ground-truth cases against the live pipeline.
type Evaluator struct {
	responder   Responder
	concurrency int
}

func NewEvaluator(responder Responder, cfg Config) *Evaluator {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Evaluator{responder: responder, concurrency: concurrency}
}

// LoadCases reads the ground-truth file.
func LoadCases(path string) ([]Case, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read eval cases: %w", err)
	}
	var cases []Case
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("parse eval cases: %w", err)
	}
	return cases, nil
}

// RunAll evaluates every case with bounded concurrency. Each case runs in its
// own ephemeral session so cases cannot contaminate each other's history. A
// failing case scores zero instead of aborting the run.
func (e *Evaluator) RunAll(ctx context.Context, cases []Case) (*Report, error) {
	if len(cases) == 0 {
		return nil, fmt.Errorf("no evaluation cases")
	}

	results := make([]Result, len(cases))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, c := range cases {
		i, c := i, c
		g.Go(func() error {
			r := e.runCase(ctx, c)
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{TotalCases: len(results), Results: results}
	var totalScore float64
	var totalLatency int64
	for _, r := range results {
		if r.Passed {
			report.Passed++
		}
		totalScore += r.FinalScore
		totalLatency += r.LatencyMS
	}
	report.Failed = report.TotalCases - report.Passed
	report.PassRate = float64(report.Passed) / float64(report.TotalCases)
	report.AverageScore = totalScore / float64(report.TotalCases)
	report.AvgLatencyMS = totalLatency / int64(report.TotalCases)

	logx.Info().
		Int("total", report.TotalCases).
		Int("passed", report.Passed).
		Float64("pass_rate", report.PassRate).
		Float64("average_score", report.AverageScore).
		Int64("avg_latency_ms", report.AvgLatencyMS).
		Msg("evaluation complete")
	return report, nil
}

func (e *Evaluator) runCase(ctx context.Context, c Case) Result {
	result := Result{CaseID: c.ID, Question: c.Question}

	sessionID := "eval-" + uuid.NewString()
	start := time.Now()
	reply, err := e.responder.HandleMessage(ctx, sessionID, c.Question)
	result.LatencyMS = time.Since(start).Milliseconds()

	if err != nil {
		logx.Warn().Err(err).Str("case_id", c.ID).Msg("evaluation case failed")
		result.Error = err.Error()
		return result
	}

	result.Response = reply.Text
	result.Agent = reply.Agent
	result.Intent = string(reply.Intent)
	if c.ExpectedIntent != "" {
		matched := string(reply.Intent) == c.ExpectedIntent
		result.IntentMatched = &matched
	}

	result.KeywordScore = KeywordScore(reply.Text, c.ExpectedKeywords)
	result.F1Score = TokenF1(reply.Text, c.ReferenceAnswer)
	result.FinalScore = CombinedScore(reply.Text, c.ExpectedKeywords, c.ReferenceAnswer)
	result.Passed = result.FinalScore >= passThreshold
	if result.IntentMatched != nil && !*result.IntentMatched {
		result.Passed = false
	}
	return result
}

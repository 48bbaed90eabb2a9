package gateway

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/modelgate/pkg/classify"
	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/route"
)

// Scores holds the weighted quality dimensions for one round table
// response.
type Scores struct {
	Relevance     float64 `json:"relevance"`
	Completeness  float64 `json:"completeness"`
	Efficiency    float64 `json:"efficiency"`
	TaskAlignment float64 `json:"task_alignment"`
	Total         float64 `json:"total"`
}

// DeliberationEntry is one provider's contribution to a round table.
type DeliberationEntry struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Content  string         `json:"content,omitempty"`
	Usage    provider.Usage `json:"usage"`
	Latency  time.Duration  `json:"latency"`
	Scores   Scores         `json:"scores"`
	Error    string         `json:"error,omitempty"`
}

// DeliberationReport summarizes a round table execution. Confidence
// comes from the judge when the judged pass ran, otherwise from the
// winner's weighted score.
type DeliberationReport struct {
	Entries        []DeliberationEntry `json:"entries"`
	Winner         string              `json:"winner"`
	Confidence     float64             `json:"confidence"`
	JudgeUsed      bool                `json:"judge_used"`
	JudgeReasoning string              `json:"judge_reasoning,omitempty"`
}

// roundTable fans the request out to every candidate concurrently,
// scores the successful responses, and picks a winner.
func (g *Gateway) roundTable(ctx context.Context, req Request, result classify.Result, candidates []route.Candidate) (*Response, error) {
	if len(candidates) > g.cfg.RoundTable.MaxParticipants {
		candidates = candidates[:g.cfg.RoundTable.MaxParticipants]
	}

	timeout := time.Duration(g.cfg.RoundTable.TimeoutMs) * time.Millisecond
	tableCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	entries := make([]DeliberationEntry, 0, len(candidates))

	eg, egCtx := errgroup.WithContext(tableCtx)
	for _, cand := range candidates {
		if !g.router.Allow(cand.Descriptor.Name) {
			continue
		}
		eg.Go(func() error {
			entry := g.deliberate(egCtx, req, result, cand)
			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()
			// Individual failures never abort the table.
			return nil
		})
	}
	_ = eg.Wait()

	succeeded := 0
	for _, e := range entries {
		if e.Error == "" {
			succeeded++
		}
	}
	minResponses := g.cfg.RoundTable.MinResponses
	if minResponses < 1 {
		minResponses = 1
	}
	if succeeded < minResponses {
		return nil, &Error{
			Code: CodeInsufficientResponses,
			Message: fmt.Sprintf("round table needed %d responses, got %d",
				minResponses, succeeded),
		}
	}

	g.score(promptFor(req), result.Category, entries)
	sort.SliceStable(entries, func(i, j int) bool {
		if (entries[i].Error == "") != (entries[j].Error == "") {
			return entries[i].Error == ""
		}
		return entries[i].Scores.Total > entries[j].Scores.Total
	})

	report := &DeliberationReport{
		Entries:    entries,
		Winner:     entries[0].Provider,
		Confidence: entries[0].Scores.Total,
	}
	winner := &entries[0]

	// The judge arbitrates head to head between the two top-scored
	// responses; everything below them stays ranked by score.
	if g.cfg.RoundTable.JudgeProvider != "" && succeeded >= 2 {
		if judged, confidence, reasoning, err := g.judge(ctx, promptFor(req), entries[:2]); err == nil {
			report.JudgeUsed = true
			report.JudgeReasoning = reasoning
			report.Confidence = confidence
			report.Winner = judged.Provider
			winner = judged
		}
	}

	resp := &Response{
		Content:    winner.Content,
		Provider:   winner.Provider,
		Model:      winner.Model,
		Mode:       ModeRoundTable,
		Category:   result.Category,
		Technique:  result.Technique,
		Confidence: result.Confidence,
		Usage:      winner.Usage,
		RoundTable: report,
	}
	if cost, ok := estimateCost(g.cfg.Pricing, winner.Provider, winner.Model, winner.Usage); ok {
		resp.Cost = &cost
	}
	return resp, nil
}

// deliberate invokes one participant and reports the breaker outcome.
func (g *Gateway) deliberate(ctx context.Context, req Request, result classify.Result, cand route.Candidate) DeliberationEntry {
	model := req.Model
	if model == "" {
		model = cand.Descriptor.DefaultModel
	}
	entry := DeliberationEntry{Provider: cand.Descriptor.Name, Model: model}

	invokeCtx := ctx
	if cand.Descriptor.Timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, cand.Descriptor.Timeout)
		defer cancel()
	}

	g.logger.CallStart(ctx, cand.Descriptor.Name, model)
	start := time.Now()
	res, err := cand.Provider.Invoke(invokeCtx, provider.Request{
		Model:       model,
		Messages:    messagesFor(result.Technique, req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	entry.Latency = time.Since(start)
	g.logger.CallEnd(ctx, cand.Descriptor.Name, model, entry.Latency, err)

	if err != nil {
		g.router.ReportFailure(cand.Descriptor.Name)
		entry.Error = err.Error()
		return entry
	}

	g.router.ReportSuccess(cand.Descriptor.Name, entry.Latency)
	entry.Content = res.Content
	entry.Usage = res.Usage
	return entry
}

// score fills the weighted scores for every successful entry.
func (g *Gateway) score(prompt string, category classify.Category, entries []DeliberationEntry) {
	fastest := time.Duration(0)
	for _, e := range entries {
		if e.Error != "" {
			continue
		}
		if fastest == 0 || e.Latency < fastest {
			fastest = e.Latency
		}
	}

	w := g.cfg.RoundTable.Weights
	for i := range entries {
		e := &entries[i]
		if e.Error != "" {
			continue
		}
		e.Scores.Relevance = relevanceScore(prompt, e.Content)
		e.Scores.Completeness = completenessScore(e.Content)
		e.Scores.Efficiency = efficiencyScore(fastest, e.Latency)
		e.Scores.TaskAlignment = alignmentScore(category, e.Content)
		e.Scores.Total = w.Relevance*e.Scores.Relevance +
			w.Completeness*e.Scores.Completeness +
			w.Efficiency*e.Scores.Efficiency +
			w.TaskAlignment*e.Scores.TaskAlignment
	}
}

// relevanceScore measures how many significant prompt terms the
// response covers.
func relevanceScore(prompt, content string) float64 {
	terms := significantTerms(prompt)
	if len(terms) == 0 {
		return 0.5
	}
	contentLower := strings.ToLower(content)
	covered := 0
	for term := range terms {
		if strings.Contains(contentLower, term) {
			covered++
		}
	}
	return float64(covered) / float64(len(terms))
}

func significantTerms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,:;!?\"'()[]")
		if len(word) > 3 {
			terms[word] = struct{}{}
		}
	}
	return terms
}

// completenessScore rewards substantive responses and saturates at a
// moderate length so verbosity stops helping.
func completenessScore(content string) float64 {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}
	score := float64(words) / 150.0
	if score > 1 {
		score = 1
	}
	return score
}

// efficiencyScore gives the fastest response 1.0 and scales the rest
// down proportionally.
func efficiencyScore(fastest, latency time.Duration) float64 {
	if latency <= 0 || fastest <= 0 {
		return 1
	}
	return float64(fastest) / float64(latency)
}

// alignmentScore checks whether the response bears the marks of its
// task category.
func alignmentScore(category classify.Category, content string) float64 {
	triggers := classify.DefaultTriggers()[category]
	if len(triggers) == 0 {
		return 0.5
	}
	contentLower := strings.ToLower(content)
	hits := 0
	for _, trig := range triggers {
		if strings.Contains(contentLower, strings.ToLower(trig)) {
			hits++
		}
	}
	// A base floor keeps alignment from dominating when responses
	// legitimately avoid the trigger vocabulary.
	return 0.5 + 0.5*float64(min(hits, 3))/3.0
}

// judge asks the configured judge model to pick a winner among the
// successful entries. Returns the chosen entry with the judge's
// confidence and reasoning, or an error when the verdict is unusable.
func (g *Gateway) judge(ctx context.Context, prompt string, entries []DeliberationEntry) (*DeliberationEntry, float64, string, error) {
	judgeProv, desc, ok := g.registry.Get(g.cfg.RoundTable.JudgeProvider)
	if !ok {
		return nil, 0, "", fmt.Errorf("judge provider %q not registered", g.cfg.RoundTable.JudgeProvider)
	}
	model := g.cfg.RoundTable.JudgeModel
	if model == "" {
		model = desc.DefaultModel
	}

	res, err := judgeProv.Invoke(ctx, provider.Request{
		Model: model,
		Messages: []provider.Message{
			{Role: "user", Content: buildJudgePrompt(prompt, entries)},
		},
		MaxTokens: 512,
	})
	if err != nil {
		return nil, 0, "", err
	}

	winnerIdx, confidence, reasoning, err := parseJudgeVerdict(res.Content)
	if err != nil {
		return nil, 0, "", err
	}

	idx := 0
	for i := range entries {
		if entries[i].Error != "" {
			continue
		}
		idx++
		if idx == winnerIdx {
			return &entries[i], confidence, reasoning, nil
		}
	}
	return nil, 0, "", fmt.Errorf("judge picked response %d of %d", winnerIdx, idx)
}

func buildJudgePrompt(prompt string, entries []DeliberationEntry) string {
	var sb strings.Builder
	sb.WriteString("You are judging candidate answers to a user request.\n")
	sb.WriteString("Pick the single best answer.\n")
	sb.WriteString("Reply in exactly this format:\n")
	sb.WriteString("WINNER: <number>\nCONFIDENCE: <0-1>\nREASONING: <one paragraph>\n\n")
	sb.WriteString("User request:\n")
	sb.WriteString(prompt)
	sb.WriteString("\n")

	n := 0
	for _, e := range entries {
		if e.Error != "" {
			continue
		}
		n++
		sb.WriteString(fmt.Sprintf("\nResponse %d:\n%s\n", n, e.Content))
	}
	return sb.String()
}

// parseJudgeVerdict extracts the winner index, confidence, and
// reasoning from the judge's structured reply. The first parseable
// value of each field wins; later lines are ignored so a judge that
// echoes the instruction template after its verdict still parses.
func parseJudgeVerdict(content string) (int, float64, string, error) {
	winner := 0
	confidence := 0.0
	reasoning := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "WINNER:") && winner == 0:
			v := strings.TrimSpace(strings.TrimPrefix(line, "WINNER:"))
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				winner = n
			}
		case strings.HasPrefix(line, "CONFIDENCE:") && confidence == 0:
			v := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
				confidence = f
			}
		case strings.HasPrefix(line, "REASONING:") && reasoning == "":
			reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		}
	}
	if winner == 0 {
		return 0, 0, "", fmt.Errorf("judge reply missing WINNER line")
	}
	return winner, confidence, reasoning, nil
}

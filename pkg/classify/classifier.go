package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zen-systems/modelgate/pkg/provider"
)

// Config controls classification behavior.
type Config struct {
	// Triggers maps categories to their trigger phrases. Nil uses
	// DefaultTriggers.
	Triggers map[Category][]string
	// DefaultCategory is assigned when no trigger matches or the
	// classifier fails outright.
	DefaultCategory Category
	// ConfidenceThreshold is the heuristic confidence below which
	// the LLM tie-breaker runs, when a refiner is configured.
	ConfidenceThreshold float64
	// RefinerModel is the model used for the LLM tie-breaker.
	RefinerModel string
	// CacheTTL bounds how long classifications are reused.
	CacheTTL time.Duration
}

// DefaultConfig returns the standard classification settings.
func DefaultConfig() Config {
	return Config{
		DefaultCategory:     Generation,
		ConfidenceThreshold: 0.65,
		CacheTTL:            time.Hour,
	}
}

// Classifier assigns categories to prompts using trigger heuristics,
// with an optional LLM refinement pass for low-confidence results.
type Classifier struct {
	cfg     Config
	refiner provider.Provider
	cache   *cache
}

// New creates a classifier. refiner may be nil to disable the LLM
// tie-breaker.
func New(cfg Config, refiner provider.Provider) *Classifier {
	if cfg.Triggers == nil {
		cfg.Triggers = DefaultTriggers()
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = DefaultConfig().DefaultCategory
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig().ConfidenceThreshold
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	return &Classifier{
		cfg:     cfg,
		refiner: refiner,
		cache:   newCache(cfg.CacheTTL),
	}
}

// Classify determines the category and technique for a prompt. It
// never returns an error: classifier failures degrade to the default
// category with zero confidence.
func (c *Classifier) Classify(ctx context.Context, prompt string) Result {
	if cached, ok := c.cache.get(prompt); ok {
		cached.CacheHit = true
		return cached
	}

	result := c.heuristic(prompt)

	if c.refiner != nil && result.Confidence < c.cfg.ConfidenceThreshold && len(result.Candidates) > 1 {
		if refined, err := c.refine(ctx, prompt, result); err == nil {
			result = refined
		} else {
			result.Reasons = append(result.Reasons, fmt.Sprintf("refiner error: %v", err))
		}
	}

	result.Technique = TechniqueFor(result.Category)
	c.cache.put(prompt, result)
	return result
}

// CacheStats returns hit and miss counters for the classification cache.
func (c *Classifier) CacheStats() (hits, misses int64) {
	return c.cache.stats()
}

// heuristic scores categories by trigger matches.
func (c *Classifier) heuristic(prompt string) Result {
	promptLower := strings.ToLower(prompt)

	var candidates []Candidate
	for cat, triggers := range c.cfg.Triggers {
		var matched []string
		for _, trig := range triggers {
			trigger := strings.ToLower(trig)
			if containsTrigger(promptLower, trigger) {
				matched = append(matched, trig)
			}
		}
		if len(matched) == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Category: cat,
			Score:    len(matched),
			Triggers: matched,
		})
	}

	if len(candidates) == 0 {
		return Result{
			Category:   c.cfg.DefaultCategory,
			Confidence: 0,
			Reasons:    []string{"no triggers matched; using default"},
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].Category < candidates[j].Category
		}
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	topScore := candidates[0].Score
	secondScore := 0
	if len(candidates) > 1 {
		secondScore = candidates[1].Score
	}

	margin := float64(topScore-secondScore) / float64(max(topScore, 1))
	strength := float64(min(topScore, 5)) / 5.0
	confidence := 0.75*margin + 0.25*strength
	if topScore >= 2 && secondScore == 0 {
		confidence = max(confidence, 0.9)
	}
	if topScore >= 3 {
		confidence = min(confidence+0.15, 1.0)
	}

	return Result{
		Category:   candidates[0].Category,
		Confidence: confidence,
		Candidates: candidates,
		Reasons:    []string{fmt.Sprintf("top_score=%d second_score=%d", topScore, secondScore)},
	}
}

type refinerPick struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// refine asks the refiner model to break a low-confidence tie among
// the heuristic candidates.
func (c *Classifier) refine(ctx context.Context, prompt string, heur Result) (Result, error) {
	resp, err := c.refiner.Invoke(ctx, provider.Request{
		Model: c.cfg.RefinerModel,
		Messages: []provider.Message{
			{Role: "user", Content: buildRefinerPrompt(prompt, heur.Candidates)},
		},
		MaxTokens: 256,
	})
	if err != nil {
		return heur, err
	}

	pick, err := parseRefinerResponse(resp.Content)
	if err != nil {
		return heur, err
	}
	if !validCategory(Category(pick.Category), heur.Candidates) {
		return heur, fmt.Errorf("refiner category %q not in candidates", pick.Category)
	}
	if pick.Confidence < 0 || pick.Confidence > 1 {
		return heur, fmt.Errorf("refiner confidence out of range")
	}

	refined := heur
	refined.Category = Category(pick.Category)
	refined.Confidence = pick.Confidence
	refined.UsedLLM = true
	refined.Reasons = append(refined.Reasons, pick.Reason)
	return refined, nil
}

func parseRefinerResponse(content string) (*refinerPick, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var pick refinerPick
	if err := json.Unmarshal([]byte(content), &pick); err != nil {
		return nil, err
	}
	if pick.Category == "" {
		return nil, fmt.Errorf("missing category")
	}
	return &pick, nil
}

func validCategory(cat Category, candidates []Candidate) bool {
	for _, candidate := range candidates {
		if candidate.Category == cat {
			return true
		}
	}
	return false
}

func buildRefinerPrompt(userPrompt string, candidates []Candidate) string {
	var sb strings.Builder
	sb.WriteString("You are a task classifier. Choose the best category.\n")
	sb.WriteString("Return ONLY JSON: {\"category\":\"...\",\"confidence\":0-1,\"reason\":\"...\"}.\n\n")
	sb.WriteString("User prompt:\n")
	sb.WriteString(userPrompt)
	sb.WriteString("\n\nCandidates:\n")

	for _, c := range candidates {
		sb.WriteString(fmt.Sprintf("- %s (score=%d)\n", c.Category, c.Score))
		if len(c.Triggers) > 0 {
			sb.WriteString(fmt.Sprintf("  triggers: %s\n", strings.Join(c.Triggers, ", ")))
		}
	}

	return sb.String()
}

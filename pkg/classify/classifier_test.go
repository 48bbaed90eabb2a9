package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zen-systems/modelgate/pkg/provider"
)

func TestHeuristicMatchesCategory(t *testing.T) {
	c := New(DefaultConfig(), nil)

	cases := []struct {
		prompt string
		want   Category
	}{
		{"debug this stack trace for me", Debugging},
		{"summarize the key points of this report", Summarization},
		{"translate this paragraph in french", Translation},
		{"classify these support tickets", Classification},
		{"extract the fields from this invoice", Extraction},
	}

	for _, tc := range cases {
		got := c.Classify(context.Background(), tc.prompt)
		if got.Category != tc.want {
			t.Errorf("prompt %q: expected %s, got %s", tc.prompt, tc.want, got.Category)
		}
		if got.Technique != TechniqueFor(tc.want) {
			t.Errorf("prompt %q: expected technique %s, got %s", tc.prompt, TechniqueFor(tc.want), got.Technique)
		}
	}
}

func TestNoMatchFallsBackToDefault(t *testing.T) {
	c := New(DefaultConfig(), nil)

	got := c.Classify(context.Background(), "xylophone quandary")
	if got.Category != Generation {
		t.Fatalf("expected default category generation, got %s", got.Category)
	}
	if got.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %f", got.Confidence)
	}
}

func TestMultipleTriggersRaiseConfidence(t *testing.T) {
	c := New(DefaultConfig(), nil)

	one := c.Classify(context.Background(), "debug this")
	many := c.Classify(context.Background(), "debug this crash, the error traceback is attached")

	if many.Category != Debugging {
		t.Fatalf("expected debugging, got %s", many.Category)
	}
	if many.Confidence <= one.Confidence {
		t.Fatalf("more trigger matches should raise confidence: %f vs %f", many.Confidence, one.Confidence)
	}
}

func TestWordBoundaryMatching(t *testing.T) {
	c := New(DefaultConfig(), nil)

	// "plane" must not match the "plan" trigger.
	got := c.Classify(context.Background(), "the plane departs at noon")
	if got.Category == Planning {
		t.Fatal("substring inside a word must not match a trigger")
	}

	// A later standalone occurrence still matches when the first one
	// is embedded in a longer word.
	if !containsTrigger("retranslate this, then translate it", "translate") {
		t.Fatal("expected the second occurrence to match on a word boundary")
	}
	got = c.Classify(context.Background(), "retranslate this, then translate it")
	if got.Category != Translation {
		t.Fatalf("expected translation, got %s", got.Category)
	}
}

func TestClassificationCached(t *testing.T) {
	refiner := provider.NewMock("refiner").WithFallback(`{"category":"debugging","confidence":0.9,"reason":"trace"}`)
	cfg := DefaultConfig()
	c := New(cfg, refiner)

	// Two weak competing triggers keep confidence below threshold,
	// so the refiner runs on the first call only.
	prompt := "find the error"
	first := c.Classify(context.Background(), prompt)
	second := c.Classify(context.Background(), prompt)

	if refiner.Calls() != 1 {
		t.Fatalf("expected 1 refiner call, got %d", refiner.Calls())
	}
	if !second.CacheHit {
		t.Fatal("second classification should be served from cache")
	}
	if first.CacheHit {
		t.Fatal("first classification must not report a cache hit")
	}
	if first.Category != second.Category {
		t.Fatalf("cache returned a different category: %s vs %s", first.Category, second.Category)
	}

	hits, misses := c.CacheStats()
	if hits != 1 || misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
}

func TestCacheExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheTTL = 30 * time.Millisecond
	c := New(cfg, nil)

	c.Classify(context.Background(), "debug this crash")
	time.Sleep(40 * time.Millisecond)
	got := c.Classify(context.Background(), "debug this crash")
	if got.CacheHit {
		t.Fatal("expired entry must not be served")
	}
}

func TestRefinerPicksAmongCandidates(t *testing.T) {
	refiner := provider.NewMock("refiner").WithFallback(`{"category":"debugging","confidence":0.85,"reason":"mentions an error"}`)
	c := New(DefaultConfig(), refiner)

	got := c.Classify(context.Background(), "find the error")
	if !got.UsedLLM {
		t.Fatal("expected the refiner to run for a low-confidence tie")
	}
	if got.Category != Debugging {
		t.Fatalf("expected refined category debugging, got %s", got.Category)
	}
	if got.Confidence != 0.85 {
		t.Fatalf("expected refined confidence 0.85, got %f", got.Confidence)
	}
}

func TestRefinerFailureKeepsHeuristic(t *testing.T) {
	refiner := provider.NewMock("refiner").WithError(errors.New("backend down"))
	c := New(DefaultConfig(), refiner)

	got := c.Classify(context.Background(), "find the error")
	if got.UsedLLM {
		t.Fatal("failed refinement must not be marked as LLM-classified")
	}
	if got.Category == "" {
		t.Fatal("heuristic result should survive refiner failure")
	}
}

func TestRefinerInvalidCategoryRejected(t *testing.T) {
	refiner := provider.NewMock("refiner").WithFallback(`{"category":"moderation","confidence":0.9,"reason":"nope"}`)
	c := New(DefaultConfig(), refiner)

	got := c.Classify(context.Background(), "find the error")
	if got.UsedLLM {
		t.Fatal("a category outside the candidates must be rejected")
	}
}

func TestHighConfidenceSkipsRefiner(t *testing.T) {
	refiner := provider.NewMock("refiner")
	c := New(DefaultConfig(), refiner)

	c.Classify(context.Background(), "debug this crash, the error traceback is attached")
	if refiner.Calls() != 0 {
		t.Fatalf("high-confidence heuristic should skip the refiner, got %d calls", refiner.Calls())
	}
}

func TestFrameAddsSystemMessage(t *testing.T) {
	msgs := Frame(ChainOfThought, "why is the sky blue")
	if len(msgs) != 2 {
		t.Fatalf("expected system plus user message, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Content != "why is the sky blue" {
		t.Fatalf("unexpected framing: %+v", msgs)
	}
}

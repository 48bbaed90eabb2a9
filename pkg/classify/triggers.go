package classify

import "strings"

// DefaultTriggers returns the built-in trigger phrases per category.
// Configuration may override or extend these.
func DefaultTriggers() map[Category][]string {
	return map[Category][]string{
		Reasoning:      {"why", "reason", "prove", "deduce", "think through", "step by step", "logic"},
		Creative:       {"story", "poem", "imagine", "creative", "brainstorm", "fiction"},
		Code:           {"code", "function", "implement", "refactor", "program", "script", "algorithm"},
		QA:             {"what is", "who is", "when did", "where is", "how does", "question"},
		Classification: {"classify", "categorize", "label", "which category", "tag"},
		Search:         {"search", "find", "look up", "locate", "retrieve"},
		Analysis:       {"analyze", "analysis", "compare", "evaluate", "assess", "examine"},
		Planning:       {"plan", "roadmap", "schedule", "strategy", "milestones", "steps to"},
		Debugging:      {"debug", "error", "stack trace", "crash", "traceback", "broken", "fails"},
		Optimization:   {"optimize", "performance", "faster", "speed up", "efficient", "tune"},
		Extraction:     {"extract", "parse", "pull out", "fields", "structured data"},
		Moderation:     {"moderate", "offensive", "policy", "toxic", "safe for", "flag"},
		Generation:     {"generate", "create", "produce", "draft", "compose", "write"},
		Summarization:  {"summarize", "summary", "tl;dr", "condense", "key points"},
		Translation:    {"translate", "translation", "in french", "in spanish", "in german", "in japanese"},
	}
}

// containsTrigger checks if the prompt contains the trigger phrase.
// It looks for the trigger as a word or phrase boundary match,
// scanning past occurrences embedded in longer words.
func containsTrigger(prompt, trigger string) bool {
	for offset := 0; offset <= len(prompt)-len(trigger); {
		idx := strings.Index(prompt[offset:], trigger)
		if idx == -1 {
			return false
		}
		idx += offset

		startOK := idx == 0 || !isWordChar(prompt[idx-1])
		endIdx := idx + len(trigger)
		endOK := endIdx >= len(prompt) || !isWordChar(prompt[endIdx])
		if startOK && endOK {
			return true
		}
		offset = idx + 1
	}
	return false
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

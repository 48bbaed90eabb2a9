// Package classify assigns prompts to task categories and selects a
// prompting technique for each.
package classify

// Category is a task category a prompt can be assigned to.
type Category string

const (
	Reasoning      Category = "reasoning"
	Creative       Category = "creative"
	Code           Category = "code"
	QA             Category = "qa"
	Classification Category = "classification"
	Search         Category = "search"
	Analysis       Category = "analysis"
	Planning       Category = "planning"
	Debugging      Category = "debugging"
	Optimization   Category = "optimization"
	Extraction     Category = "extraction"
	Moderation     Category = "moderation"
	Generation     Category = "generation"
	Summarization  Category = "summarization"
	Translation    Category = "translation"
)

// Categories lists every known category.
func Categories() []Category {
	return []Category{
		Reasoning, Creative, Code, QA, Classification,
		Search, Analysis, Planning, Debugging, Optimization,
		Extraction, Moderation, Generation, Summarization, Translation,
	}
}

// Technique is a prompting technique applied when building the final
// provider prompt.
type Technique string

const (
	ChainOfThought   Technique = "chain_of_thought"
	FewShot          Technique = "few_shot"
	TreeOfThoughts   Technique = "tree_of_thoughts"
	React            Technique = "react"
	RAG              Technique = "rag"
	StructuredOutput Technique = "structured_output"
	Constitutional   Technique = "constitutional"
	RoleBased        Technique = "role_based"
	SelfConsistency  Technique = "self_consistency"
)

// techniqueByCategory maps each category to its default technique.
var techniqueByCategory = map[Category]Technique{
	Reasoning:      ChainOfThought,
	Creative:       TreeOfThoughts,
	Code:           ChainOfThought,
	QA:             RAG,
	Classification: FewShot,
	Search:         React,
	Analysis:       ChainOfThought,
	Planning:       TreeOfThoughts,
	Debugging:      React,
	Optimization:   SelfConsistency,
	Extraction:     StructuredOutput,
	Moderation:     Constitutional,
	Generation:     RoleBased,
	Summarization:  RoleBased,
	Translation:    FewShot,
}

// TechniqueFor returns the default technique for a category.
func TechniqueFor(cat Category) Technique {
	if t, ok := techniqueByCategory[cat]; ok {
		return t
	}
	return RoleBased
}

// Candidate is a category that matched at least one trigger.
type Candidate struct {
	Category Category `json:"category"`
	Score    int      `json:"score"`
	Triggers []string `json:"triggers,omitempty"`
}

// Result is the outcome of classifying one prompt.
type Result struct {
	Category   Category    `json:"category"`
	Technique  Technique   `json:"technique"`
	Confidence float64     `json:"confidence"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Reasons    []string    `json:"reasons,omitempty"`
	UsedLLM    bool        `json:"used_llm"`
	CacheHit   bool        `json:"cache_hit"`
}

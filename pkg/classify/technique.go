package classify

import "github.com/zen-systems/modelgate/pkg/provider"

// systemByTechnique holds the system framing applied per technique.
var systemByTechnique = map[Technique]string{
	ChainOfThought:   "Work through the problem step by step. Show your reasoning before stating the final answer.",
	FewShot:          "Follow the pattern of the examples in the prompt. Match their format exactly in your answer.",
	TreeOfThoughts:   "Explore several distinct approaches before answering. Briefly compare them, then commit to the strongest one.",
	React:            "Alternate between reasoning about what you know and stating what you would check next. Conclude with the answer.",
	RAG:              "Answer strictly from the provided context. If the context does not contain the answer, say so.",
	StructuredOutput: "Return only the requested structure. No prose outside it.",
	Constitutional:   "Before answering, check the request against safety and policy constraints. Decline clearly when it violates them.",
	RoleBased:        "You are a domain expert. Answer with the precision and vocabulary of a practitioner.",
	SelfConsistency:  "Solve the problem independently more than once, compare the results, and report the answer the attempts agree on.",
}

// Frame wraps a raw prompt in the system framing for a technique.
func Frame(technique Technique, prompt string) []provider.Message {
	system, ok := systemByTechnique[technique]
	if !ok {
		return []provider.Message{{Role: "user", Content: prompt}}
	}
	return []provider.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}
}

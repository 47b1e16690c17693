// Package incremental reconciles a model's edited graph against the canvas it
// was asked to extend.
//
// The edit contract is defined once in Contract: the prompt assembler renders
// its clauses for the model, and the Reconciler tags every repair it makes
// with the key of the rule the model broke.
package incremental

import (
	"fmt"
	"strings"
)

// Rule keys of the edit contract.
const (
	RuleDoNotSimplify      = "DO_NOT_SIMPLIFY"
	RulePreserveComplexity = "PRESERVE_COMPLEXITY"
	RuleNoDeletion         = "NO_DELETION"
	RuleNoModification     = "NO_MODIFICATION"
	RuleNoMerge            = "NO_MERGE"
	RuleNoRearrangement    = "NO_REARRANGEMENT"
	RuleOnlyAdd            = "ONLY_ADD"
)

// Rule is one clause of the edit contract.
type Rule struct {
	Key    string
	Title  string
	Clause string
}

// Contract is the append-only edit contract, in the order it is presented.
var Contract = []Rule{
	{
		Key:    RuleDoNotSimplify,
		Title:  "DO NOT SIMPLIFY",
		Clause: "Return every existing node and edge. Never summarize, collapse or abbreviate the existing diagram.",
	},
	{
		Key:    RulePreserveComplexity,
		Title:  "PRESERVE COMPLEXITY",
		Clause: "The result must contain at least as many nodes and edges as the existing diagram, and every existing concept must still be named.",
	},
	{
		Key:    RuleNoDeletion,
		Title:  "NO DELETION",
		Clause: "Do not remove any existing node or edge, even if it seems redundant.",
	},
	{
		Key:    RuleNoModification,
		Title:  "NO MODIFICATION",
		Clause: "Keep the id, label, type, position and color of every existing node exactly as given.",
	},
	{
		Key:    RuleNoMerge,
		Title:  "NO MERGE",
		Clause: "Do not merge existing nodes together and do not reuse an existing id for a new node.",
	},
	{
		Key:    RuleNoRearrangement,
		Title:  "NO REARRANGEMENT",
		Clause: "Do not move existing nodes. Place new nodes only inside the free region given below.",
	},
	{
		Key:    RuleOnlyAdd,
		Title:  "ONLY ADD",
		Clause: "The only allowed change is adding new nodes and new edges that fulfil the request.",
	},
}

// RuleByKey returns the contract rule with the given key.
func RuleByKey(key string) (Rule, bool) {
	for _, r := range Contract {
		if r.Key == key {
			return r, true
		}
	}
	return Rule{}, false
}

// ConstraintBlock renders the contract as the numbered, non-negotiable
// constraint section of an incremental prompt.
func ConstraintBlock() string {
	var b strings.Builder
	b.WriteString("NON-NEGOTIABLE CONSTRAINTS:\n")
	for i, r := range Contract {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, r.Title, r.Clause)
	}
	return strings.TrimRight(b.String(), "\n")
}

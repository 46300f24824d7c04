package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/halim/evo/pkg/tools"
)

// Tools returns the built-in tools through which the planner manages
// long-term memory: remember, recall, forget and list_memories.
func Tools(store *Store) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("remember",
			"Store a fact in long-term memory. Use for durable information about "+
				"the user or the world, not for transient conversation state.",
			[]tools.Parameter{
				{Name: "content", Type: "string", Description: "The fact to remember", Required: true},
				{Name: "category", Type: "string", Description: "Optional category, e.g. preference, person, project"},
			},
			func(ctx context.Context, args map[string]interface{}) (string, error) {
				content, err := tools.StringArg(args, "content")
				if err != nil {
					return "", err
				}
				category, err := tools.OptionalStringArg(args, "category")
				if err != nil {
					return "", err
				}
				fact, err := store.Remember(ctx, content, category)
				if err != nil {
					return "", storeError(err)
				}
				return fmt.Sprintf("Remembered (id %s).", fact.ID), nil
			}),

		tools.NewFunc("recall",
			"Search long-term memory for facts matching a query.",
			[]tools.Parameter{
				{Name: "query", Type: "string", Description: "What to look for", Required: true},
				{Name: "limit", Type: "integer", Description: "Maximum facts to return", Default: float64(5)},
			},
			func(ctx context.Context, args map[string]interface{}) (string, error) {
				query, err := tools.StringArg(args, "query")
				if err != nil {
					return "", err
				}
				limit := intArg(args, "limit", 5)

				facts, err := store.Recall(ctx, query, limit)
				if err != nil {
					return "", storeError(err)
				}
				if len(facts) == 0 {
					return "No matching facts in memory.", nil
				}
				return renderFacts(facts), nil
			}),

		tools.NewFunc("forget",
			"Delete a fact from long-term memory by its ID.",
			[]tools.Parameter{
				{Name: "id", Type: "string", Description: "Fact ID as shown by recall or list_memories", Required: true},
			},
			func(ctx context.Context, args map[string]interface{}) (string, error) {
				id, err := tools.StringArg(args, "id")
				if err != nil {
					return "", err
				}
				if err := store.Forget(ctx, id); err != nil {
					return "", storeError(err)
				}
				return fmt.Sprintf("Fact %s forgotten.", id), nil
			}),

		tools.NewFunc("list_memories",
			"List remembered facts, newest first, optionally filtered by category.",
			[]tools.Parameter{
				{Name: "category", Type: "string", Description: "Optional category filter"},
				{Name: "limit", Type: "integer", Description: "Maximum facts to return", Default: float64(20)},
			},
			func(ctx context.Context, args map[string]interface{}) (string, error) {
				category, err := tools.OptionalStringArg(args, "category")
				if err != nil {
					return "", err
				}
				limit := intArg(args, "limit", 20)

				facts, err := store.List(ctx, category, limit)
				if err != nil {
					return "", storeError(err)
				}
				if len(facts) == 0 {
					return "Memory is empty.", nil
				}
				return renderFacts(facts), nil
			}),
	}
}

func renderFacts(facts []Fact) string {
	var b strings.Builder
	for _, fact := range facts {
		fmt.Fprintf(&b, "- %s [%s] (id %s)\n", fact.Content, fact.Category, fact.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func intArg(args map[string]interface{}, name string, fallback int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}

func storeError(err error) error {
	return &tools.FailureError{Kind: tools.FailToolError, Message: err.Error()}
}

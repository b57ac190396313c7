package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sortbin/internal/services/llm"
)

const classifierSystemPrompt = "You are a waste classification assistant."

const classifierUserPrompt = `Which category does each of these items belong to: recyclable waste or non-recyclable waste?
If bottles or tissues are detected, prioritize them. Ignore colors.
Answer with JSON of the form {"items":[{"item":"<item>","category":"recyclable waste"}]} using exactly the item names given.

Items: %s`

// LLMClassifier asks a language model for per-item waste categories.
type LLMClassifier struct {
	completer llm.Completer
}

// NewLLMClassifier wraps completer.
func NewLLMClassifier(completer llm.Completer) *LLMClassifier {
	return &LLMClassifier{completer: completer}
}

// Classify returns one verdict per item the model answered for. Categories
// other than the two known names are coerced to NonRecyclable.
func (c *LLMClassifier) Classify(ctx context.Context, items []string) ([]ItemCategory, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if c == nil || c.completer == nil {
		return nil, errors.New("classifier: no llm configured")
	}
	content, err := c.completer.CompleteJSON(ctx, classifierSystemPrompt, fmt.Sprintf(classifierUserPrompt, strings.Join(items, ", ")))
	if err != nil {
		return nil, err
	}
	return ParseClassification(content)
}

// ParseClassification accepts either the JSON reply shape or plain
// "Item - Category" lines.
func ParseClassification(content string) ([]ItemCategory, error) {
	var payload struct {
		Items []struct {
			Item     string `json:"item"`
			Category string `json:"category"`
		} `json:"items"`
	}
	if err := llm.DecodeLLMJSON(content, &payload); err == nil && len(payload.Items) > 0 {
		out := make([]ItemCategory, 0, len(payload.Items))
		for _, entry := range payload.Items {
			if item := strings.TrimSpace(entry.Item); item != "" {
				out = append(out, ItemCategory{Item: item, Category: ParseCategory(entry.Category)})
			}
		}
		return out, nil
	}

	var out []ItemCategory
	for _, line := range strings.Split(llm.StripCodeFence(content), "\n") {
		item, category, ok := strings.Cut(line, " - ")
		if !ok {
			continue
		}
		item = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(item), "-* "))
		if item == "" {
			continue
		}
		out = append(out, ItemCategory{Item: item, Category: ParseCategory(category)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("classifier: unrecognized reply %q", truncate(content, 120))
	}
	return out, nil
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return s
}

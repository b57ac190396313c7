package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sortbin/internal/services/llm"
)

// Result is the outcome of resolving one utterance.
type Result struct {
	Name    string `json:"name,omitempty"`
	ID      *int64 `json:"id,omitempty"`
	Unknown bool   `json:"unknown"`
}

// UnknownResult reports an utterance that did not identify anyone.
func UnknownResult() Result {
	return Result{Unknown: true}
}

// Known reports whether the result names a ledger user. An ID without a name
// cannot be looked up and counts as unknown.
func (r Result) Known() bool {
	return !r.Unknown && strings.TrimSpace(r.Name) != ""
}

// String renders the result in the "Name:"/"ID:" form shown to operators.
func (r Result) String() string {
	if !r.Known() {
		return "Unknown"
	}
	out := "Name: " + r.Name
	if r.ID != nil {
		out += "\nID: " + strconv.FormatInt(*r.ID, 10)
	}
	return out
}

// Resolver maps utterance text to an identity.
type Resolver interface {
	Resolve(ctx context.Context, text string) (Result, error)
}

const resolverSystemPrompt = "You are an identity analysis assistant."

const resolverUserPrompt = `The following text is a noisy speech transcription that may contain extra words or slightly corrupted phrases, but it usually includes the person's name and/or user ID.
Extract the person's name and/or numeric user ID. Transliterate names written in non-English letters into plain English letters.
Answer with JSON of the form {"name":"<name or empty>","id":<number or null>,"unknown":<true if neither was found>}.

Speech content: %s`

// LLMResolver asks a language model to extract the identity.
type LLMResolver struct {
	completer llm.Completer
}

// NewLLMResolver wraps completer.
func NewLLMResolver(completer llm.Completer) *LLMResolver {
	return &LLMResolver{completer: completer}
}

// Resolve sends text to the model. Blank input resolves to unknown without a call.
func (r *LLMResolver) Resolve(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return UnknownResult(), nil
	}
	if r == nil || r.completer == nil {
		return UnknownResult(), errors.New("identity: no llm configured")
	}
	content, err := r.completer.CompleteJSON(ctx, resolverSystemPrompt, fmt.Sprintf(resolverUserPrompt, text))
	if err != nil {
		return UnknownResult(), err
	}
	return Parse(content), nil
}

// Parse interprets a model reply. JSON replies are tried first, then
// "Name: x" / "ID: n" lines. The word "Unknown" anywhere in a line-form reply
// marks the whole reply as unknown. Names are lowercased.
func Parse(content string) Result {
	var payload struct {
		Name    string          `json:"name"`
		ID      json.RawMessage `json:"id"`
		Unknown bool            `json:"unknown"`
	}
	if err := llm.DecodeLLMJSON(content, &payload); err == nil {
		if payload.Unknown {
			return UnknownResult()
		}
		return build(payload.Name, parseID(string(payload.ID)))
	}

	body := llm.StripCodeFence(content)
	if strings.Contains(body, "Unknown") {
		return UnknownResult()
	}
	var name string
	var id *int64
	for _, line := range strings.Split(body, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name":
			name = value
		case "id":
			if parsed := parseID(value); parsed != nil {
				id = parsed
			}
		}
	}
	return build(name, id)
}

func build(name string, id *int64) Result {
	name = NormalizeName(name)
	if name == "" {
		return UnknownResult()
	}
	return Result{Name: name, ID: id}
}

// NormalizeName lowercases and trims a name and collapses inner whitespace.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func parseID(raw string) *int64 {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &value
}

package feedback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Record is the feedback document produced by the endpoint. It is stored
// verbatim as the conversation_transcript of a result, so the export reads
// the same feedback.rating nesting.
type Record struct {
	Feedback Feedback `json:"feedback"`

	raw json.RawMessage
}

type Feedback struct {
	Rating                map[string]any `json:"rating"`
	Recommendation        string         `json:"Recommendation"`
	RecommendationMessage string         `json:"RecommendationMessage"`
}

// Raw returns the document exactly as parsed.
func (r *Record) Raw() json.RawMessage { return r.raw }

var errNoFeedback = errors.New("document has no feedback object")

// Parse decodes cleaned feedback text. The top level must be a JSON object
// holding a feedback object; anything else wraps interview.ErrParse at the
// caller.
func Parse(text string) (*Record, error) {
	data := []byte(text)

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	fb, ok := top["feedback"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(fb), []byte("{")) {
		return nil, errNoFeedback
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode feedback: %w", err)
	}
	if rec.Feedback.Rating == nil {
		rec.Feedback.Rating = map[string]any{}
	}
	rec.raw = json.RawMessage(data)
	return &rec, nil
}

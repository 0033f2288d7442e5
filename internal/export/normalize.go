// Package export flattens stored interview results into the candidates
// spreadsheet.
package export

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/recruiter/internal/store"
)

const (
	Filename    = "candidates.csv"
	ContentType = "text/csv;charset=utf-8"
)

// Columns is the fixed header of the export.
var Columns = []string{
	"Name",
	"Email",
	"Score",
	"TechnicalSkills",
	"Communication",
	"ProblemSolving",
	"Experience",
	"Behavioral",
	"Recommendation",
	"RecommendationMessage",
}

type alias struct {
	column string
	keys   []string
}

// ratingAliases maps each rating column to the source keys accepted for it,
// in lookup order.
var ratingAliases = []alias{
	{column: "TechnicalSkills", keys: []string{"TechnicalSkills", "technicalSkills"}},
	{column: "Communication", keys: []string{"Communication", "communication"}},
	{column: "ProblemSolving", keys: []string{"ProblemSolving", "problemSolving"}},
	{column: "Experience", keys: []string{"Experience", "experience"}},
	{column: "Behavioral", keys: []string{"Behavioral", "behavioral"}},
}

// Row is one flattened result.
type Row struct {
	Name                  string
	Email                 string
	Score                 string
	Ratings               map[string]string
	Recommendation        string
	RecommendationMessage string
}

// Values returns the row in Columns order.
func (r Row) Values() []string {
	out := []string{r.Name, r.Email, r.Score}
	for _, a := range ratingAliases {
		out = append(out, r.Ratings[a.column])
	}
	return append(out, r.Recommendation, r.RecommendationMessage)
}

var lineBreaks = regexp.MustCompile(`\r\n|\n|\r`)

// Sanitize collapses each line break to a single space and drops commas and
// double quotes.
func Sanitize(s string) string {
	s = lineBreaks.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, ",", "")
	return strings.ReplaceAll(s, `"`, "")
}

// Score is the rounded mean of the numeric values directly under rating.
// It returns false when no value is numeric.
func Score(rating map[string]any) (int, bool) {
	var sum float64
	var n int
	for _, v := range rating {
		if f, ok := v.(float64); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return int(math.Floor(sum/float64(n) + 0.5)), true
}

// Normalize flattens one stored result.
func Normalize(r store.Result) Row {
	doc := object(decode(r.ConversationTranscript))
	fb := object(doc["feedback"])
	rating := object(fb["rating"])

	row := Row{
		Name:                  Sanitize(r.Fullname),
		Email:                 Sanitize(r.Email),
		Ratings:               make(map[string]string, len(ratingAliases)),
		Recommendation:        Sanitize(text(fb["Recommendation"])),
		RecommendationMessage: Sanitize(text(fb["RecommendationMessage"])),
	}
	if score, ok := Score(rating); ok {
		row.Score = strconv.Itoa(score)
	}
	for _, a := range ratingAliases {
		row.Ratings[a.column] = resolve(rating, a.keys)
	}
	return row
}

func resolve(rating map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := rating[k]; ok && v != nil {
			return Sanitize(cell(v))
		}
	}
	return ""
}

func decode(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func object(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func cell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

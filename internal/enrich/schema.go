package enrich

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Adda-Baaj/casa-harvester/pkg/openrouter"
)

const (
	maxSummaryRunes = 300
	minScore        = 1
	maxScore        = 10
)

// Response is the normalized completion envelope written to the output file
// and stored in the cache.
type Response struct {
	ID       string   `json:"id"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Object   string   `json:"object"`
	Created  int64    `json:"created"`
	Choices  []Choice `json:"choices"`
}

// Choice carries one decoded assessment.
type Choice struct {
	Logprobs     json.RawMessage `json:"logprobs"`
	FinishReason string          `json:"finish_reason"`
	Index        int             `json:"index"`
	Message      Message         `json:"message"`
	Refusal      *string         `json:"refusal"`
}

// Message is the assistant turn with its content parsed.
type Message struct {
	Role    string     `json:"role"`
	Content Assessment `json:"content"`
}

// Assessment is the structured evaluation of one listing.
type Assessment struct {
	URLID                    Text        `json:"url_id"`
	Bedrooms                 Int         `json:"no_bedrooms"`
	Bathrooms                Int         `json:"no_bathrooms"`
	HasGarage                Bool        `json:"has_garage"`
	HasPool                  Bool        `json:"has_pool"`
	HasGoodLocation          Bool        `json:"has_good_location"`
	Location                 Text        `json:"location"`
	AveragePrice             Int         `json:"average_price"`
	AverageSqrMeters         Int         `json:"average_sqr_meters"`
	AveragePricePerSqrMeters Float       `json:"average_price_per_sqr_meters"`
	SqrMeters                Int         `json:"sqr_meters"`
	Price                    NullableInt `json:"price"`
	Summary                  Text        `json:"summary"`
	Score                    Int         `json:"score"`
}

func (a *Assessment) normalize() {
	if utf8.RuneCountInString(string(a.Summary)) > maxSummaryRunes {
		runes := []rune(string(a.Summary))
		a.Summary = Text(strings.TrimSpace(string(runes[:maxSummaryRunes])))
	}
	switch {
	case a.Score < minScore:
		a.Score = minScore
	case a.Score > maxScore:
		a.Score = maxScore
	}
}

// DecodeAssessment repairs and decodes model output into an Assessment.
func DecodeAssessment(content string) (Assessment, error) {
	var a Assessment
	repaired := Repair(stripFence(content))
	if err := json.Unmarshal([]byte(repaired), &a); err != nil {
		return Assessment{}, fmt.Errorf("decode assessment: %w", err)
	}
	a.normalize()
	return a, nil
}

// Normalize converts a raw completion into a Response, decoding every
// choice's content.
func Normalize(chat *openrouter.ChatResponse) (Response, error) {
	if chat == nil {
		return Response{}, fmt.Errorf("completion is nil")
	}
	out := Response{
		ID:       chat.ID,
		Provider: chat.Provider,
		Model:    chat.Model,
		Object:   chat.Object,
		Created:  chat.Created,
		Choices:  make([]Choice, 0, len(chat.Choices)),
	}
	for i, c := range chat.Choices {
		a, err := DecodeAssessment(c.Message.Content)
		if err != nil {
			return Response{}, fmt.Errorf("choice %d: %w", i, err)
		}
		out.Choices = append(out.Choices, Choice{
			Logprobs:     c.Logprobs,
			FinishReason: c.FinishReason,
			Index:        c.Index,
			Message:      Message{Role: c.Message.Role, Content: a},
			Refusal:      c.Refusal,
		})
	}
	return out, nil
}

// Int decodes JSON numbers or numeric strings. null becomes 0.
type Int int64

func (n *Int) UnmarshalJSON(b []byte) error {
	f, null, err := parseNumber(b)
	if err != nil {
		return err
	}
	if null {
		*n = 0
		return nil
	}
	*n = Int(math.Round(f))
	return nil
}

// Float decodes JSON numbers or numeric strings. null becomes 0.
type Float float64

func (n *Float) UnmarshalJSON(b []byte) error {
	f, null, err := parseNumber(b)
	if err != nil {
		return err
	}
	if null {
		*n = 0
		return nil
	}
	*n = Float(f)
	return nil
}

// NullableInt is an integer that encodes as null when the source value was
// missing or not numeric.
type NullableInt struct {
	Value int64
	Valid bool
}

func (n *NullableInt) UnmarshalJSON(b []byte) error {
	f, null, err := parseNumber(b)
	if err != nil || null {
		*n = NullableInt{}
		return nil
	}
	*n = NullableInt{Value: int64(math.Round(f)), Valid: true}
	return nil
}

func (n NullableInt) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(n.Value, 10)), nil
}

// Bool decodes JSON booleans, 0/1 numbers and common yes/no strings.
type Bool bool

var (
	trueWords  = map[string]bool{"true": true, "yes": true, "y": true, "sim": true, "1": true}
	falseWords = map[string]bool{"false": true, "no": true, "n": true, "não": true, "nao": true, "0": true, "": true, "none": true}
)

func (v *Bool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = false
		return nil
	case bytes.Equal(b, []byte("true")):
		*v = true
		return nil
	case bytes.Equal(b, []byte("false")):
		*v = false
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		word := strings.ToLower(strings.TrimSpace(s))
		switch {
		case trueWords[word]:
			*v = true
		case falseWords[word]:
			*v = false
		default:
			return fmt.Errorf("cannot interpret %q as a boolean", s)
		}
		return nil
	}

	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("cannot interpret %s as a boolean", b)
	}
	*v = f != 0
	return nil
}

// Text decodes strings, and stringifies numbers and booleans. null becomes "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
		return nil
	}
	if len(b) > 0 && (b[0] == '{' || b[0] == '[') {
		return fmt.Errorf("cannot interpret %s as text", b)
	}
	*t = Text(b)
	return nil
}

var thousandsPattern = regexp.MustCompile(`^-?\d{1,3}([.,]\d{3})+$`)

var numericNoise = strings.NewReplacer(
	" ", "", "\u00a0", "", "€", "", "$", "", "EUR", "", "eur", "",
	"m²", "", "m2", "",
)

// parseNumber reads a JSON number or a quoted numeric string. null and empty
// strings report null.
func parseNumber(b []byte) (float64, bool, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0, true, nil
	}

	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, false, err
		}
		raw = cleanNumeric(s)
		if raw == "" {
			return 0, true, nil
		}
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cannot interpret %s as a number", b)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("number %s is not finite", b)
	}
	return f, false, nil
}

func cleanNumeric(s string) string {
	s = numericNoise.Replace(strings.TrimSpace(s))
	switch {
	case thousandsPattern.MatchString(s):
		s = strings.NewReplacer(".", "", ",", "").Replace(s)
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s
}

package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformed wraps every ParseRecords failure.
var ErrMalformed = errors.New("journal: malformed extraction output")

const recordsSchemaURL = "ilji://journal/records.json"

const recordsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "additionalProperties": false,
    "required": ["date"],
    "properties": {
      "date":         {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
      "weekday":      {"type": ["string", "null"]},
      "workout_part": {"type": ["string", "null"]},
      "workout_load": {"type": ["string", "null"]},
      "workout_time": {"type": ["string", "null"]},
      "condition":    {"type": ["string", "null"]},
      "breakfast":    {"type": ["string", "null"]},
      "lunch":        {"type": ["string", "null"]},
      "dinner":       {"type": ["string", "null"]},
      "snack":        {"type": ["string", "null"]},
      "notes":        {"type": ["array", "null"], "items": {"type": "string"}}
    }
  }
}`

var recordsSchema = jsonschema.MustCompileString(recordsSchemaURL, recordsSchemaJSON)

// ExtractionPrompt is the system prompt for the schema-extraction call.
// today anchors relative dates ("오늘", "어제") in the conversation.
func ExtractionPrompt(today time.Time) string {
	return fmt.Sprintf(`너는 대화 기록에서 건강 일지 데이터를 추출하는 도구야. 대화에 답하지 말고 JSON만 출력해.

규칙:
- 대화에 실제로 나온 내용만 기록해. 근거가 없는 필드는 반드시 빈 문자열 "" 로 둬. 추측하거나 지어내지 마.
- 대화에 언급된 날짜마다 원소 하나씩, JSON 배열로 출력해. 날짜 언급이 없으면 오늘(%s) 하나만.
- date 는 YYYY-MM-DD 형식. 연도가 없으면 %d년으로 해.
- weekday 는 date 에서 계산한 한국어 요일 (예: 수요일).
- notes 는 위 필드에 들어가지 않는 중요한 내용의 짧은 문장 배열. 없으면 [].
- 코드 블록이나 설명 없이 배열만 출력해.

각 원소의 키: date, weekday, workout_part, workout_load, workout_time, condition, breakfast, lunch, dinner, snack, notes`,
		today.Format(time.DateOnly), today.Year())
}

// ParseRecords decodes model output into records. The output must be a JSON
// array matching the record schema, optionally wrapped in a Markdown code
// fence. Unknown keys and malformed dates are rejected. Weekday is always
// recomputed from the date; records with no content are dropped.
func ParseRecords(raw string) ([]Record, error) {
	body := stripFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformed)
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := recordsSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	var recs []Record
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := make([]Record, 0, len(recs))
	for i, r := range recs {
		d, err := time.Parse(time.DateOnly, r.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: records[%d]: invalid date %q", ErrMalformed, i, r.Date)
		}
		r.Weekday = Weekday(d.Weekday())
		r.Notes = cleanNotes(r.Notes)
		trimFields(&r)
		if r.IsEmpty() {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an info string such as "json".
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func cleanNotes(notes []string) []string {
	var out []string
	for _, n := range notes {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func trimFields(r *Record) {
	for _, f := range []*string{&r.WorkoutPart, &r.WorkoutLoad, &r.WorkoutTime, &r.Condition,
		&r.Breakfast, &r.Lunch, &r.Dinner, &r.Snack} {
		*f = strings.TrimSpace(*f)
	}
}

package journal

import (
	"strings"
)

// Render formats one record in the fixed journal layout:
//
//	📅 2026-02-18 (수요일)
//
//	🏋️ 운동
//	- 부위: ...
//	...
//	🍽️ 식단
//	- 아침: ...
//	...
//	📝 메모
//	- ...
//
// Empty fields render as "-" so every entry has the same shape.
func Render(r Record) string {
	var b strings.Builder

	b.WriteString("📅 ")
	b.WriteString(r.Date)
	if r.Weekday != "" {
		b.WriteString(" (")
		b.WriteString(r.Weekday)
		b.WriteString(")")
	}
	b.WriteString("\n\n🏋️ 운동\n")
	field(&b, "부위", r.WorkoutPart)
	field(&b, "무게", r.WorkoutLoad)
	field(&b, "시간", r.WorkoutTime)
	field(&b, "컨디션", r.Condition)

	b.WriteString("\n🍽️ 식단\n")
	field(&b, "아침", r.Breakfast)
	field(&b, "점심", r.Lunch)
	field(&b, "저녁", r.Dinner)
	field(&b, "간식", r.Snack)

	b.WriteString("\n📝 메모\n")
	if len(r.Notes) == 0 {
		b.WriteString("- -\n")
	}
	for _, n := range r.Notes {
		b.WriteString("- ")
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderAll renders records in order, separated by a horizontal rule.
func RenderAll(recs []Record) string {
	parts := make([]string, len(recs))
	for i, r := range recs {
		parts[i] = Render(r)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func field(b *strings.Builder, label, value string) {
	if value == "" {
		value = "-"
	}
	b.WriteString("- ")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}

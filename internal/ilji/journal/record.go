// Package journal turns a day's conversation into journal entries.
//
// Two pure helpers, ParseRecords (strict decoding of model JSON) and
// SectionByDate (regex partitioning of free text), share only the Record
// shape. Pipeline combines them with the history store and the model
// collaborator into the save strategies.
package journal

import (
	"strings"
	"time"
)

// Record is one day's structured journal entry.
type Record struct {
	Date        string   `json:"date"`
	Weekday     string   `json:"weekday"`
	WorkoutPart string   `json:"workout_part"`
	WorkoutLoad string   `json:"workout_load"`
	WorkoutTime string   `json:"workout_time"`
	Condition   string   `json:"condition"`
	Breakfast   string   `json:"breakfast"`
	Lunch       string   `json:"lunch"`
	Dinner      string   `json:"dinner"`
	Snack       string   `json:"snack"`
	Notes       []string `json:"notes"`
}

// Time parses the record's date as midnight in loc.
func (r Record) Time(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, r.Date, loc)
}

// IsEmpty reports whether the record carries no content besides its date.
func (r Record) IsEmpty() bool {
	for _, f := range []string{r.WorkoutPart, r.WorkoutLoad, r.WorkoutTime, r.Condition,
		r.Breakfast, r.Lunch, r.Dinner, r.Snack} {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	for _, n := range r.Notes {
		if strings.TrimSpace(n) != "" {
			return false
		}
	}
	return true
}

// HasWorkout reports whether any workout field is set.
func (r Record) HasWorkout() bool {
	return r.WorkoutPart != "" || r.WorkoutLoad != "" || r.WorkoutTime != "" || r.Condition != ""
}

// HasMeals reports whether any meal field is set.
func (r Record) HasMeals() bool {
	return r.Breakfast != "" || r.Lunch != "" || r.Dinner != "" || r.Snack != ""
}

var koreanWeekdays = [...]string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}

// Weekday returns the Korean weekday name for d.
func Weekday(d time.Weekday) string {
	return koreanWeekdays[d]
}

// WeekdayOf returns the Korean weekday for an ISO date, or "" if the date
// does not parse.
func WeekdayOf(date string) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return ""
	}
	return Weekday(t.Weekday())
}

// Package calendar expands recurring calendar events using RFC 5545 rules.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/kodix/kodix/internal/model"
)

var ErrInvalidRule = errors.New("invalid recurrence rule")

// maxOccurrences bounds a single expansion.
const maxOccurrences = 1000

// ParseRule parses an RRULE anchored at dtstart. A leading "RRULE:" is
// accepted.
func ParseRule(rule string, dtstart time.Time) (*rrule.RRule, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	opt.Dtstart = dtstart
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return r, nil
}

// Validate checks that rule is empty or parseable.
func Validate(rule string) error {
	if strings.TrimSpace(rule) == "" {
		return nil
	}
	_, err := ParseRule(rule, time.Now())
	return err
}

// Occurrences returns start times of ev within [from, to). Events without
// a rule occur once at their start time.
func Occurrences(ev model.CalendarEvent, from, to time.Time) ([]time.Time, error) {
	if !from.Before(to) {
		return nil, nil
	}
	if !ev.Recurring() {
		if !ev.StartTime.Before(from) && ev.StartTime.Before(to) {
			return []time.Time{ev.StartTime}, nil
		}
		return nil, nil
	}

	r, err := ParseRule(ev.RecurrenceRule, ev.StartTime)
	if err != nil {
		return nil, err
	}

	var out []time.Time
	for _, t := range r.Between(from, to, true) {
		if !t.Before(to) {
			continue
		}
		out = append(out, t)
		if len(out) == maxOccurrences {
			break
		}
	}
	return out, nil
}

// Truncate ends ev's rule just before at, for "this and following" edits.
// It returns the rule to keep on the original event.
func Truncate(ev model.CalendarEvent, at time.Time) (string, error) {
	if !ev.Recurring() {
		return "", fmt.Errorf("%w: event is not recurring", ErrInvalidRule)
	}
	if !at.After(ev.StartTime) {
		return "", fmt.Errorf("%w: split point must follow the first occurrence", ErrInvalidRule)
	}
	opt, err := rrule.StrToROption(strings.TrimPrefix(ev.RecurrenceRule, "RRULE:"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	opt.Count = 0
	opt.Until = at.Add(-time.Second).UTC()
	return opt.RRuleString(), nil
}

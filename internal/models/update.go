package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruby4mag/firewatch-backend/internal/alarm"
)

var ErrEmptyUpdate = errors.New("no updatable fields provided")

// ReportUpdate carries the mutable fields of a report. A count change
// always carries its recomputed alarm level with it.
type ReportUpdate struct {
	SetCause bool
	Cause    *string
	SetCount bool
	Count    *int
}

func (u ReportUpdate) Empty() bool { return !u.SetCause && !u.SetCount }

// Fields returns the document fields to $set, keyed by bson name.
func (u ReportUpdate) Fields() map[string]interface{} {
	f := make(map[string]interface{})
	if u.SetCause {
		if u.Cause == nil {
			f["cause_of_fire"] = nil
		} else {
			f["cause_of_fire"] = TruncateCause(*u.Cause)
		}
	}
	if u.SetCount {
		if u.Count == nil {
			f["number_of_structures_on_fire"] = nil
		} else {
			f["number_of_structures_on_fire"] = *u.Count
		}
		f["alarm_level"] = alarm.Classify(u.Count)
	}
	return f
}

// Apply writes the update into r in place.
func (u ReportUpdate) Apply(r *FireReport) {
	if u.SetCause {
		if u.Cause == nil {
			r.CauseOfFire = nil
		} else {
			r.CauseOfFire = optional(TruncateCause(*u.Cause))
		}
	}
	if u.SetCount {
		if u.Count == nil {
			r.NumberOfStructuresOnFire = nil
		} else {
			n := *u.Count
			r.NumberOfStructuresOnFire = &n
		}
		r.AlarmLevel = alarm.Classify(u.Count)
	}
}

// ParseReportUpdate reads a JSON update body. cause_of_fire takes a string or
// null; number_of_structures_on_fire takes an integer, an integer string or null.
// Unknown keys are ignored.
func ParseReportUpdate(body []byte) (ReportUpdate, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return ReportUpdate{}, fmt.Errorf("invalid JSON body: %w", err)
	}

	var u ReportUpdate
	if v, ok := raw["cause_of_fire"]; ok {
		u.SetCause = true
		if !isNull(v) {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return ReportUpdate{}, fmt.Errorf("cause_of_fire must be a string")
			}
			if s != "" {
				u.Cause = &s
			}
		}
	}
	if v, ok := raw["number_of_structures_on_fire"]; ok {
		u.SetCount = true
		if !isNull(v) {
			n, err := parseCount(v)
			if err != nil {
				return ReportUpdate{}, err
			}
			u.Count = &n
		}
	}
	if u.Empty() {
		return ReportUpdate{}, ErrEmptyUpdate
	}
	return u, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func parseCount(v json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(v, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("number_of_structures_on_fire must be an integer")
}

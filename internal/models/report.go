package models

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/ruby4mag/firewatch-backend/internal/ai"
	"github.com/ruby4mag/firewatch-backend/internal/alarm"
)

const MaxCauseLength = 200

// TimestampLayout renders e.g. "March 07 4:05 pm".
const TimestampLayout = "January 02 3:04 pm"

// ReportZone is the fixed UTC+8 offset report timestamps are shown in.
var ReportZone = time.FixedZone("UTC+8", 8*60*60)

type FireReport struct {
	ID                       string    `bson:"_id,omitempty" json:"id,omitempty"`
	Timestamp                string    `bson:"timestamp" json:"timestamp"`
	CreatedAt                time.Time `bson:"created_at" json:"-"`
	PhotoURL                 *string   `bson:"photo_url" json:"photo_url"`
	GeotagLocation           *string   `bson:"geotag_location" json:"geotag_location"`
	CauseOfFire              *string   `bson:"cause_of_fire" json:"cause_of_fire"`
	ReporterName             *string   `bson:"reporter_name" json:"reporter_name"`
	ReporterID               *string   `bson:"reporter_id" json:"reporter_id"`
	Prediction               *string   `bson:"prediction" json:"prediction"`
	Confidence               *string   `bson:"confidence" json:"confidence"`
	Structure                *string   `bson:"structure" json:"structure"`
	NumberOfStructuresOnFire *int      `bson:"number_of_structures_on_fire" json:"number_of_structures_on_fire"`
	AlarmLevel               string    `bson:"alarm_level" json:"alarm_level"`
	SmokeIntensity           *string   `bson:"smoke_intensity" json:"smoke_intensity"`
	SmokeConfidence          *string   `bson:"smoke_confidence" json:"smoke_confidence"`
}

// MarshalJSON writes a missing timestamp or alarm level as null, like every
// other absent field. Documents stored before either existed decode as "".
func (r FireReport) MarshalJSON() ([]byte, error) {
	type plain FireReport
	return json.Marshal(struct {
		plain
		Timestamp  *string `json:"timestamp"`
		AlarmLevel *string `json:"alarm_level"`
	}{
		plain:      plain(r),
		Timestamp:  optional(r.Timestamp),
		AlarmLevel: optional(r.AlarmLevel),
	})
}

// Metadata is what the reporter sends alongside the photo.
type Metadata struct {
	GeotagLocation string
	CauseOfFire    string
	ReporterName   string
	ReporterID     string
	StructureCount *int
	PhotoURL       string
}

// NewFireReport assembles a report from model outputs and reporter metadata.
// Blank metadata and disabled detectors become nulls.
func NewFireReport(res ai.Results, meta Metadata, now time.Time) FireReport {
	r := FireReport{
		Timestamp:                FormatTimestamp(now),
		CreatedAt:                now.UTC(),
		PhotoURL:                 optional(meta.PhotoURL),
		GeotagLocation:           optional(meta.GeotagLocation),
		CauseOfFire:              optional(TruncateCause(meta.CauseOfFire)),
		ReporterName:             optional(meta.ReporterName),
		ReporterID:               optional(meta.ReporterID),
		NumberOfStructuresOnFire: meta.StructureCount,
		AlarmLevel:               alarm.Classify(meta.StructureCount),
	}
	if res.Fire != nil {
		r.Prediction = optional(res.Fire.Label)
		r.Confidence = optional(res.Fire.Percent())
	}
	if res.Structure != nil {
		r.Structure = optional(res.Structure.Label)
	}
	if res.Smoke != nil {
		r.SmokeIntensity = optional(res.Smoke.Label)
		r.SmokeConfidence = optional(res.Smoke.Percent())
	}
	return r
}

func FormatTimestamp(t time.Time) string {
	return t.In(ReportZone).Format(TimestampLayout)
}

// TruncateCause cuts s to MaxCauseLength characters, never splitting a rune.
func TruncateCause(s string) string {
	if utf8.RuneCountInString(s) <= MaxCauseLength {
		return s
	}
	return string([]rune(s)[:MaxCauseLength])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package models

import "time"

const (
	SessionMorning = "morning"
	SessionEvening = "evening"
)

const DefaultTimezone = "Asia/Kolkata"

type Session struct {
	IsOpen bool   `json:"is_open"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type DaySchedule struct {
	Morning Session `json:"morning"`
	Evening Session `json:"evening"`
}

type SpecialClosure struct {
	Date            string   `json:"date"`
	Closed          bool     `json:"closed,omitempty"`
	MorningClosed   bool     `json:"morning_closed,omitempty"`
	EveningClosed   bool     `json:"evening_closed,omitempty"`
	MorningOverride *Session `json:"morning_override,omitempty"`
	EveningOverride *Session `json:"evening_override,omitempty"`
}

type ClinicDetails struct {
	ClinicName string `json:"clinic_name"`
	DoctorName string `json:"doctor_name"`
	LogoURL    string `json:"logo_url,omitempty"`
}

// DoctorSchedule holds the weekly template indexed by weekday, 0 = Sunday.
type DoctorSchedule struct {
	Timezone        string           `json:"timezone"`
	SlotDuration    int              `json:"slot_duration"`
	Days            [7]DaySchedule   `json:"days"`
	SpecialClosures []SpecialClosure `json:"special_closures"`
	Clinic          ClinicDetails    `json:"clinic"`
}

type DoctorStatus struct {
	IsOnline     bool       `json:"is_online"`
	OnlineTime   *time.Time `json:"online_time,omitempty"`
	DelayMinutes int        `json:"delay_minutes"`
	IsPaused     bool       `json:"is_paused"`
	PauseStart   *time.Time `json:"pause_start,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

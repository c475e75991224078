package sqlcgen

import "time"

type Observation struct {
	ID         int64
	DeviceName string
	ObservedAt time.Time
	Status     string
	RawLabel   string
	Source     string
	IngestedAt time.Time
}

type Device struct {
	Name        string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	LastStatus  string
}

type ReportRun struct {
	ID          string
	Status      string
	Params      map[string]any
	Stats       map[string]any
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   *string
}

type ReportRunLog struct {
	ID        int64
	RunID     string
	Level     string
	Message   string
	CreatedAt time.Time
}

type ReportInterval struct {
	ID            int64
	RunID         string
	Device        string
	OfflineAt     time.Time
	OnlineAt      *time.Time
	Seconds       float64
	Duration      string
	Status        string
	DisplayStatus string
}

type ReportSummary struct {
	RunID           string
	Device          string
	CurrentStatus   string
	OngoingCount    int32
	LastOfflineAt   time.Time
	LastOnlineAt    *time.Time
	TotalEvents     int32
	TotalSeconds    float64
	TotalDuration   string
	CurrentSeconds  *float64
	CurrentDuration *string
}

// internal/database/models.go
package database

import (
    "time"

    "sitewarden/internal/analyzers"
)

type Status string

const (
    StatusUnknown Status = "unknown" // never checked
    StatusOK      Status = "ok"
    StatusChanged Status = "alterado"
    StatusError   Status = "erro"
)

type AlertType string

const (
    AlertError   AlertType = "erro"
    AlertChanged AlertType = "alterado"
    AlertInfo    AlertType = "info"
)

// Target is a monitored site. LastHash is empty until the first successful check.
type Target struct {
    ID            string    `json:"id"`
    Name          string    `json:"name"`
    URL           string    `json:"url"`
    Enabled       bool      `json:"enabled"`
    LastHash      string    `json:"last_hash,omitempty"`
    LastStatus    Status    `json:"last_status"`
    LastCheckedAt time.Time `json:"last_checked_at"`
    CreatedAt     time.Time `json:"created_at"`
    UpdatedAt     time.Time `json:"updated_at"`
}

type Image struct {
    Src string `json:"src"`
    Alt string `json:"alt"`
}

// CheckResult is one fetch-and-analyze pass over one target. It is appended to
// history and never modified.
type CheckResult struct {
    ID             string            `json:"id"`
    TargetID       string            `json:"target_id"`
    TargetName     string            `json:"target_name"`
    URL            string            `json:"url"`
    Timestamp      time.Time         `json:"timestamp"`
    Status         Status            `json:"status"`
    HTTPStatus     int               `json:"http_status"`
    Hash           string            `json:"hash,omitempty"`
    LoadDurationMs int64             `json:"load_duration_ms"`
    HTTPS          bool              `json:"https"`
    Headers        map[string]string `json:"headers"`
    Title          string            `json:"title,omitempty"`
    HTMLBytes      int               `json:"html_bytes"`
    Images         []Image           `json:"images"`
    Screenshot     string            `json:"screenshot,omitempty"`
    Host           string            `json:"host"`
    IP             string            `json:"ip"`
    GeoLocation    string            `json:"geo_location"`
    Message        string            `json:"message"`

    analyzers.Report
}

type Alert struct {
    ID         string    `json:"id"`
    TargetID   string    `json:"target_id"`
    TargetName string    `json:"target_name"`
    URL        string    `json:"url"`
    Type       AlertType `json:"type"`
    Message    string    `json:"message"`
    CreatedAt  time.Time `json:"created_at"`
}

// TargetCheckUpdate is what the engine writes back to the registry after a check.
// An empty Hash leaves the stored hash untouched.
type TargetCheckUpdate struct {
    TargetID  string
    Status    Status
    Hash      string
    CheckedAt time.Time
}

type TargetFilters struct {
    Enabled *bool
}

type HistoryFilters struct {
    Since time.Time
    Limit int
}

type AlertFilters struct {
    TargetID string
    Type     AlertType
    Since    time.Time
    Limit    int
}

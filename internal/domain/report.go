package domain

import (
	"strings"
	"time"
)

// Urgency of a tactical report.
type Urgency string

const (
	UrgencyUrgent      Urgency = "urgent"
	UrgencyNormal      Urgency = "normal"
	UrgencyUnspecified Urgency = "unspecified"
)

// Confidence of a tactical report.
type Confidence string

const (
	ConfidenceConfirmed   Confidence = "confirmed"
	ConfidenceProbable    Confidence = "probable"
	ConfidenceUnconfirmed Confidence = "unconfirmed"
)

// NotMentioned is the analysis service's placeholder for an empty field.
const NotMentioned = "غير مذكور"

// ParseUrgency accepts the service's Arabic labels and the English values.
func ParseUrgency(raw string) Urgency {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "عاجل", string(UrgencyUrgent):
		return UrgencyUrgent
	case "عادي", string(UrgencyNormal):
		return UrgencyNormal
	default:
		return UrgencyUnspecified
	}
}

// ParseConfidence accepts the service's Arabic labels and the English values.
// Unknown labels are treated as unconfirmed.
func ParseConfidence(raw string) Confidence {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "مؤكد", string(ConfidenceConfirmed):
		return ConfidenceConfirmed
	case "محتمل", string(ConfidenceProbable):
		return ConfidenceProbable
	default:
		return ConfidenceUnconfirmed
	}
}

// Extraction carries the structured fields extracted from a recording.
type Extraction struct {
	Command          string     `json:"command"`
	Direction        string     `json:"direction"`
	Location         string     `json:"location"`
	Target           string     `json:"target"`
	Urgency          Urgency    `json:"urgency"`
	Confidence       Confidence `json:"confidence"`
	Notes            string     `json:"notes"`
	OriginalQuotes   []string   `json:"originalQuotes"`
	Summary          string     `json:"summary"`
	ValidationIssues []string   `json:"validationIssues"`
	Validated        bool       `json:"isValidated"`
}

// Mentioned reports whether a field carries a real value.
func (Extraction) Mentioned(value string) bool {
	value = strings.TrimSpace(value)
	return value != "" && value != NotMentioned
}

// NeedsReview reports whether the service flagged validation issues.
func (e Extraction) NeedsReview() bool {
	return len(e.ValidationIssues) > 0
}

// ReportStatus is the processing status reported by the analysis service.
type ReportStatus string

const (
	ReportProcessed ReportStatus = "processed"
	ReportError     ReportStatus = "error"
)

// Report is an analyzed recording, either fresh or read back from the message log.
type Report struct {
	ID           string       `json:"id"`
	OriginalText string       `json:"originalText"`
	Summary      string       `json:"summary"`
	Extraction   *Extraction  `json:"extraction,omitempty"`
	SummaryAudio *Artifact    `json:"-"`
	Timestamp    time.Time    `json:"timestamp"`
	Status       ReportStatus `json:"status"`
}

// Matches reports whether the query is contained in the summary or the original text.
// An empty query matches everything.
func (r Report) Matches(query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(r.Summary, query) || strings.Contains(r.OriginalText, query)
}

// FilterReports keeps reports matching the query, preserving order.
func FilterReports(reports []Report, query string) []Report {
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if r.Matches(query) {
			out = append(out, r)
		}
	}
	return out
}

// ReportView is the form handed to user interfaces: the summary audio becomes a playable
// data URL.
type ReportView struct {
	Report
	SummaryAudioURL string `json:"summaryAudioUrl,omitempty"`
}

// View renders the report for a user interface.
func (r Report) View() ReportView {
	view := ReportView{Report: r}
	if r.SummaryAudio != nil {
		view.SummaryAudioURL = r.SummaryAudio.DataURL()
	}
	return view
}

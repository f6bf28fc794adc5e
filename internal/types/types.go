package types

import "time"

// Event type discriminants understood by the telemetry backend
const (
	EventMetrics     = "SSL_Certificate_Metrics"
	EventError       = "SSL_Certificate_Error"
	EventCronSummary = "SSL_Certificate_Cron_Summary"
	EventUsage       = "SSL_Certificate_Usage"
)

// UnknownIssuer is reported when the CT record carries no issuer name
const UnknownIssuer = "Unknown"

// CertificateRecord is a single entry as returned by the certificate transparency index
type CertificateRecord struct {
	IssuerName   string `json:"issuer_name,omitempty"`
	CommonName   string `json:"common_name,omitempty"`
	NameValue    string `json:"name_value,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	NotBefore    string `json:"not_before"`
	NotAfter     string `json:"not_after"`
}

// HasValidity reports whether both validity bounds are present
func (r CertificateRecord) HasValidity() bool {
	return r.NotBefore != "" && r.NotAfter != ""
}

// CertInfo is the resolved view of the current certificate for a domain
type CertInfo struct {
	DaysRemaining  int    `json:"daysRemaining"`
	ExpirationDate string `json:"expirationDate"`
	ValidFrom      string `json:"validFrom"`
	Issuer         string `json:"issuer"`
}

// Event is a flat telemetry record. Build it with one of the constructors
// and treat it as read-only afterwards.
type Event map[string]interface{}

// Type returns the eventType discriminant
func (e Event) Type() string {
	s, _ := e["eventType"].(string)
	return s
}

// NewMetricsEvent describes a successful check
func NewMetricsEvent(domain, apex string, info CertInfo, automated bool) Event {
	return Event{
		"eventType":      EventMetrics,
		"domain":         domain,
		"apexDomain":     apex,
		"daysRemaining":  info.DaysRemaining,
		"expirationDate": info.ExpirationDate,
		"validFrom":      info.ValidFrom,
		"issuer":         info.Issuer,
		"automatedCheck": automated,
	}
}

// NewErrorEvent describes a failed check
func NewErrorEvent(domain, message string, automated bool, at time.Time) Event {
	return Event{
		"eventType":      EventError,
		"domain":         domain,
		"error":          message,
		"automatedCheck": automated,
		"timestamp":      at.Unix(),
	}
}

// Summary aggregates one batch run
type Summary struct {
	RunID      string        `json:"runId"`
	Total      int           `json:"totalDomains"`
	Succeeded  int           `json:"successfulChecks"`
	Failed     int           `json:"failedChecks"`
	Duration   time.Duration `json:"-"`
	FinishedAt time.Time     `json:"-"`
}

// NewSummaryEvent describes a completed batch run
func NewSummaryEvent(s Summary) Event {
	return Event{
		"eventType":        EventCronSummary,
		"runId":            s.RunID,
		"totalDomains":     s.Total,
		"successfulChecks": s.Succeeded,
		"failedChecks":     s.Failed,
		"durationMs":       s.Duration.Milliseconds(),
		"timestamp":        s.FinishedAt.Unix(),
	}
}

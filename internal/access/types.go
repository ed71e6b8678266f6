// Package access decides whether a captured face may pass, records every
// attempt and alerts managers about denials.
package access

import (
	"time"

	"github.com/kozaktomas/facepass/internal/descriptor"
)

// Reason explains a denial. Allowed decisions carry ReasonNone.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoFace          Reason = "no face detected"
	ReasonInvalidImage    Reason = "image invalid"
	ReasonNotRecognized   Reason = "face not recognized in system"
	ReasonPendingApproval Reason = "pending manager approval"
	ReasonUserNotFound    Reason = "identity record not found"
	ReasonSystemError     Reason = "system error"
)

// UnrecognizedPerson is the name used in notifications when no identity matched.
const UnrecognizedPerson = "unrecognized person"

// Attempt is one capture presented at an access point.
type Attempt struct {
	Image       []byte
	Location    string // empty selects the configured default
	RecipientID int64  // manager to notify on denial, 0 uses the configured recipient
}

// Decision is the outcome of one attempt. It is built once per attempt and
// never modified after Process returns it.
type Decision struct {
	AttemptID   string    `json:"attempt_id"`
	Allowed     bool      `json:"allowed"`
	Reason      Reason    `json:"reason,omitempty"`
	UserID      int64     `json:"user_id,omitempty"`
	UserName    string    `json:"user_name,omitempty"`
	Position    string    `json:"position,omitempty"`
	Confidence  float64   `json:"confidence"`
	Distance    float64   `json:"distance,omitempty"`
	FacesFound  int       `json:"faces_found"`
	CaptureHash string    `json:"capture_hash,omitempty"`
	Location    string    `json:"location"`
	Timestamp   time.Time `json:"timestamp"`
}

// Recognized reports whether the decision is tied to a known identity.
func (d *Decision) Recognized() bool {
	return d.UserID != 0
}

// NotifyName is the identity name when known, else UnrecognizedPerson.
func (d *Decision) NotifyName() string {
	if d.UserName != "" {
		return d.UserName
	}
	return UnrecognizedPerson
}

// ShouldNotify reports whether managers are alerted about this decision.
// System errors are logged but not turned into notifications.
func (d *Decision) ShouldNotify() bool {
	return !d.Allowed && d.Reason != ReasonSystemError
}

func (d *Decision) applyCapture(r *descriptor.Result) {
	if r == nil {
		return
	}
	d.FacesFound = r.FacesFound
	d.CaptureHash = r.CaptureHash
}

// failed turns d into a system error denial. A match found before the
// failure is dropped so the register carries no half-confirmed identity.
func (d *Decision) failed() {
	d.Allowed = false
	d.Reason = ReasonSystemError
	d.UserID = 0
	d.UserName = ""
	d.Position = ""
	d.Confidence = 0
	d.Distance = 0
}

package domain

import (
	"strings"
	"time"
)

// CallStatus tracks the lifecycle of an enquiry's outbound call.
type CallStatus string

const (
	CallStatusPending         CallStatus = "pending"
	CallStatusCalling         CallStatus = "calling"
	CallStatusCompleted       CallStatus = "completed"
	CallStatusFailed          CallStatus = "failed"
	CallStatusSiteVisitBooked CallStatus = "site_visit_booked"
)

// FormData holds the contact details submitted through the enquiry form.
type FormData struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// FirstName returns the leading whitespace-separated token of the submitted
// name, used for the call greeting. Falls back to "there" for empty names.
func (f FormData) FirstName() string {
	fields := strings.Fields(f.Name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

// VisitSchedule is the date/time pair confirmed by the caller.
type VisitSchedule struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// CallData is the nested blob collected during the call.
type CallData struct {
	CollectedInfo       map[string]string `json:"collected_info,omitempty"`
	ConversationHistory []ChatMessage     `json:"conversation_history,omitempty"`
	DurationSeconds     float64           `json:"duration,omitempty"`
	EndedAt             *time.Time        `json:"ended_at,omitempty"`
}

// Enquiry is one record in the enquiries file.
type Enquiry struct {
	EnquiryID      string         `json:"enquiry_id"`
	FormData       FormData       `json:"form_data"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	Status         CallStatus     `json:"status"`
	CallSID        string         `json:"call_sid,omitempty"`
	VisitScheduled *VisitSchedule `json:"visit_scheduled,omitempty"`
	CallData       *CallData      `json:"call_data"`
}

// EnquiryPatch is a shallow partial update. Nil fields are left untouched.
type EnquiryPatch struct {
	Status         *CallStatus
	CallSID        *string
	VisitScheduled *VisitSchedule
	CallData       *CallData
}

// Apply merges the patch into the record, top-level keys only.
func (p EnquiryPatch) Apply(e *Enquiry) {
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.CallSID != nil {
		e.CallSID = *p.CallSID
	}
	if p.VisitScheduled != nil {
		e.VisitScheduled = p.VisitScheduled
	}
	if p.CallData != nil {
		e.CallData = p.CallData
	}
}

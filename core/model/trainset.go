package model

import "time"

// HighSeverityPriority is the lowest job-card priority number still treated
// as high severity. Priorities run from 1 (highest) to 5 (lowest).
const HighSeverityPriority = 2

// Trainset is one unit of the fleet as reported by ingestion.
type Trainset struct {
	ID          string    `json:"id" yaml:"id" validate:"required"`
	CarCount    int       `json:"car_count" yaml:"car_count" validate:"gte=0"`
	Status      Status    `json:"status" yaml:"status" validate:"required,oneof=revenue_service standby maintenance cleaning out_of_service"`
	Mileage     float64   `json:"mileage" yaml:"mileage" validate:"gte=0"`
	LastCleaned time.Time `json:"last_cleaned" yaml:"last_cleaned"`
	StablingBay string    `json:"stabling_bay,omitempty" yaml:"stabling_bay,omitempty"`
}

// HardwareFault reports whether the physical status flags the unit as
// unusable.
func (t Trainset) HardwareFault() bool { return t.Status == StatusOutOfService }

// Certificate is a time-bounded fitness clearance owned by one trainset.
type Certificate struct {
	TrainsetID string          `json:"trainset_id" yaml:"trainset_id" validate:"required"`
	Type       CertificateType `json:"type" yaml:"type" validate:"required,oneof=rolling_stock signalling telecom"`
	Start      time.Time       `json:"start" yaml:"start" validate:"required"`
	End        time.Time       `json:"end" yaml:"end" validate:"required,gtfield=Start"`
	Valid      bool            `json:"valid" yaml:"valid"`
	Issuer     string          `json:"issuer,omitempty" yaml:"issuer,omitempty"`
}

// ValidAt reports whether the certificate is flagged valid and its window
// contains now. The window is half-open: [Start, End).
func (c Certificate) ValidAt(now time.Time) bool {
	return c.Valid && !now.Before(c.Start) && now.Before(c.End)
}

// JobCard is a maintenance work order owned by one trainset.
type JobCard struct {
	ID          string        `json:"id" yaml:"id" validate:"required"`
	TrainsetID  string        `json:"trainset_id" yaml:"trainset_id" validate:"required"`
	Status      JobCardStatus `json:"status" yaml:"status" validate:"required,oneof=open in_progress closed"`
	Priority    int           `json:"priority" yaml:"priority" validate:"gte=1,lte=5"`
	Source      string        `json:"source,omitempty" yaml:"source,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Created     time.Time     `json:"created" yaml:"created"`
}

// Open reports whether work on the card is still outstanding.
func (j JobCard) Open() bool { return j.Status != JobClosed }

// HighSeverity reports whether the card's priority blocks service.
func (j JobCard) HighSeverity() bool { return j.Priority <= HighSeverityPriority }

// Blocking reports whether the card makes its trainset service-ineligible.
func (j JobCard) Blocking() bool { return j.Open() && j.HighSeverity() }

// BrandingContract tracks advertiser exposure. An empty TrainsetID means the
// contract is not currently wrapped on any unit.
type BrandingContract struct {
	ID          string    `json:"id" yaml:"id" validate:"required"`
	TrainsetID  string    `json:"trainset_id,omitempty" yaml:"trainset_id,omitempty"`
	Advertiser  string    `json:"advertiser,omitempty" yaml:"advertiser,omitempty"`
	Target      float64   `json:"target" yaml:"target" validate:"gt=0"`
	Accumulated float64   `json:"accumulated" yaml:"accumulated" validate:"gte=0"`
	Start       time.Time `json:"start" yaml:"start" validate:"required"`
	End         time.Time `json:"end" yaml:"end" validate:"required,gtfield=Start"`
}

// Remaining returns the exposure still owed under the contract.
func (b BrandingContract) Remaining() float64 {
	if b.Accumulated >= b.Target {
		return 0
	}
	return b.Target - b.Accumulated
}

// StablingSlot is a yard position with its morning exit cost. It is an
// optimization input only.
type StablingSlot struct {
	Bay      string  `json:"bay" yaml:"bay" validate:"required"`
	Track    string  `json:"track,omitempty" yaml:"track,omitempty"`
	Position int     `json:"position" yaml:"position" validate:"gte=0"`
	ExitCost float64 `json:"exit_cost" yaml:"exit_cost" validate:"gte=0"`
}

// CleaningSlot is a booked cleaning window. An empty TrainsetID means the
// slot is free.
type CleaningSlot struct {
	ID         string    `json:"id" yaml:"id" validate:"required"`
	TrainsetID string    `json:"trainset_id,omitempty" yaml:"trainset_id,omitempty"`
	Start      time.Time `json:"start" yaml:"start" validate:"required"`
	End        time.Time `json:"end" yaml:"end" validate:"required,gtfield=Start"`
}

// MileageRecord is the derived mileage view used for equalization.
type MileageRecord struct {
	TrainsetID string  `json:"trainset_id"`
	Total      float64 `json:"total"`
	// Deviation is (total - fleet mean) / fleet mean. Negative values are
	// below the mean.
	Deviation float64 `json:"deviation"`
}

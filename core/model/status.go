package model

import "fmt"

// Status is the operational status of a trainset. The optimizer only assigns
// StatusService, StatusStandby and StatusMaintenance; the remaining values
// appear as physical status reported by ingestion.
type Status string

const (
	StatusService      Status = "revenue_service"
	StatusStandby      Status = "standby"
	StatusMaintenance  Status = "maintenance"
	StatusCleaning     Status = "cleaning"
	StatusOutOfService Status = "out_of_service"
)

// AssignableStatuses lists the statuses a Decision may carry, in report order.
var AssignableStatuses = []Status{StatusService, StatusStandby, StatusMaintenance}

// String returns the wire representation of the status.
func (s Status) String() string { return string(s) }

// Assignable reports whether s is a valid induction outcome.
func (s Status) Assignable() bool {
	switch s {
	case StatusService, StatusStandby, StatusMaintenance:
		return true
	}
	return false
}

// Known reports whether s is any recognised physical or assigned status.
func (s Status) Known() bool {
	return s.Assignable() || s == StatusCleaning || s == StatusOutOfService
}

// ParseStatus converts a string into an assignable Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Assignable() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", v)}
	}
	return s, nil
}

// CertificateType identifies one of the independently mandatory fitness
// certificates.
type CertificateType string

const (
	CertRollingStock CertificateType = "rolling_stock"
	CertSignalling   CertificateType = "signalling"
	CertTelecom      CertificateType = "telecom"
)

// MandatoryCertificates is the fixed evaluation order of certificate checks.
var MandatoryCertificates = []CertificateType{CertRollingStock, CertSignalling, CertTelecom}

// Known reports whether t is one of the mandatory certificate types.
func (t CertificateType) Known() bool {
	for _, m := range MandatoryCertificates {
		if m == t {
			return true
		}
	}
	return false
}

// JobCardStatus is the state of a maintenance work order.
type JobCardStatus string

const (
	JobOpen       JobCardStatus = "open"
	JobInProgress JobCardStatus = "in_progress"
	JobClosed     JobCardStatus = "closed"
)

// Package fleettest builds deterministic fleet snapshots for tests.
package fleettest

import (
	"fmt"
	"time"

	"github.com/kilianp07/induction/core/model"
)

// Epoch is the TakenAt instant of every generated snapshot.
var Epoch = time.Date(2026, 1, 15, 5, 0, 0, 0, time.UTC)

// ID formats the n-th trainset id (1-based), e.g. TS-005.
func ID(n int) string { return fmt.Sprintf("TS-%03d", n) }

// Fleet returns n service-ready trainsets with valid certificates, recent
// cleaning and one stabling bay each. Mileage grows with the index so the
// lowest ids sit below the fleet mean.
func Fleet(n int) model.Snapshot {
	s := model.Snapshot{TakenAt: Epoch}
	for i := 1; i <= n; i++ {
		id := ID(i)
		bay := fmt.Sprintf("B%02d", i)
		s.Trainsets = append(s.Trainsets, model.Trainset{
			ID:          id,
			CarCount:    4,
			Status:      model.StatusStandby,
			Mileage:     40000 + float64(i)*1000,
			LastCleaned: Epoch.Add(-12 * time.Hour),
			StablingBay: bay,
		})
		for _, ct := range model.MandatoryCertificates {
			s.Certificates = append(s.Certificates, model.Certificate{
				TrainsetID: id,
				Type:       ct,
				Start:      Epoch.AddDate(0, -1, 0),
				End:        Epoch.AddDate(0, 11, 0),
				Valid:      true,
			})
		}
		s.StablingSlots = append(s.StablingSlots, model.StablingSlot{Bay: bay, Position: i, ExitCost: float64(i)})
	}
	return s
}

// Expire marks the trainset's certificate of type ct invalid and past its end.
func Expire(s *model.Snapshot, id string, ct model.CertificateType) {
	for i := range s.Certificates {
		c := &s.Certificates[i]
		if c.TrainsetID == id && c.Type == ct {
			c.Valid = false
			c.End = s.TakenAt.Add(-24 * time.Hour)
			c.Start = c.End.AddDate(-1, 0, 0)
		}
	}
}

// OpenJob adds an open job card with the given priority.
func OpenJob(s *model.Snapshot, id string, priority int) {
	s.JobCards = append(s.JobCards, model.JobCard{
		ID:         fmt.Sprintf("JC-%s-%d", id, len(s.JobCards)+1),
		TrainsetID: id,
		Status:     model.JobOpen,
		Priority:   priority,
		Source:     "maximo",
		Created:    s.TakenAt.Add(-time.Hour),
	})
}

// SetMileage overrides one trainset's mileage.
func SetMileage(s *model.Snapshot, id string, km float64) {
	for i := range s.Trainsets {
		if s.Trainsets[i].ID == id {
			s.Trainsets[i].Mileage = km
		}
	}
}

// SetStatus overrides one trainset's physical status.
func SetStatus(s *model.Snapshot, id string, st model.Status) {
	for i := range s.Trainsets {
		if s.Trainsets[i].ID == id {
			s.Trainsets[i].Status = st
		}
	}
}

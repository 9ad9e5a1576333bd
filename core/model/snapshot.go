package model

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Snapshot is a consistent, point-in-time view of the fleet. TakenAt is the
// evaluation instant for every time-dependent rule, so a snapshot evaluates
// identically no matter when it is processed.
type Snapshot struct {
	TakenAt       time.Time          `json:"taken_at" yaml:"taken_at" validate:"required"`
	Trainsets     []Trainset         `json:"trainsets" yaml:"trainsets" validate:"dive"`
	Certificates  []Certificate      `json:"certificates" yaml:"certificates" validate:"dive"`
	JobCards      []JobCard          `json:"job_cards" yaml:"job_cards" validate:"dive"`
	Contracts     []BrandingContract `json:"branding_contracts" yaml:"branding_contracts" validate:"dive"`
	StablingSlots []StablingSlot     `json:"stabling_slots" yaml:"stabling_slots" validate:"dive"`
	CleaningSlots []CleaningSlot     `json:"cleaning_slots" yaml:"cleaning_slots" validate:"dive"`
	// Overrides holds the active overrides at TakenAt.
	Overrides []Override `json:"overrides,omitempty" yaml:"overrides,omitempty" validate:"dive"`
}

var snapshotValidate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Validate checks required fields and id uniqueness. The returned error is a
// *ValidationError naming the first offending field.
func (s Snapshot) Validate() error {
	if err := snapshotValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fieldPath(fe.Namespace()), Reason: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return &ValidationError{Reason: err.Error()}
	}
	seen := make(map[string]struct{}, len(s.Trainsets))
	for i, t := range s.Trainsets {
		if _, dup := seen[t.ID]; dup {
			return &ValidationError{Field: fmt.Sprintf("trainsets[%d].id", i), Reason: fmt.Sprintf("duplicate trainset %s", t.ID)}
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

func fieldPath(ns string) string {
	return strings.TrimPrefix(ns, "Snapshot.")
}

// Clone returns a deep copy sharing no mutable state with s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		TakenAt:       s.TakenAt,
		Trainsets:     append([]Trainset(nil), s.Trainsets...),
		Certificates:  append([]Certificate(nil), s.Certificates...),
		JobCards:      append([]JobCard(nil), s.JobCards...),
		Contracts:     append([]BrandingContract(nil), s.Contracts...),
		StablingSlots: append([]StablingSlot(nil), s.StablingSlots...),
		CleaningSlots: append([]CleaningSlot(nil), s.CleaningSlots...),
		Overrides:     append([]Override(nil), s.Overrides...),
	}
}

// Has reports whether the snapshot contains the trainset id.
func (s Snapshot) Has(id string) bool {
	for _, t := range s.Trainsets {
		if t.ID == id {
			return true
		}
	}
	return false
}

// IDs returns all trainset ids in ascending order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Trainsets))
	for _, t := range s.Trainsets {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}

// TrainsetView groups every record owned by one trainset.
type TrainsetView struct {
	Trainset      Trainset
	Certificates  []Certificate
	JobCards      []JobCard
	Contract      *BrandingContract
	Slot          *StablingSlot
	CleaningSlots []CleaningSlot
}

// Index is a per-trainset lookup over a snapshot.
type Index struct {
	views map[string]*TrainsetView
	ids   []string
}

// Index builds the per-trainset lookup. Records referring to unknown
// trainsets are ignored here; the conflict detector reports them.
func (s Snapshot) Index() Index {
	idx := Index{views: make(map[string]*TrainsetView, len(s.Trainsets))}
	slots := make(map[string]*StablingSlot, len(s.StablingSlots))
	for i := range s.StablingSlots {
		slots[s.StablingSlots[i].Bay] = &s.StablingSlots[i]
	}
	for _, t := range s.Trainsets {
		v := &TrainsetView{Trainset: t}
		if t.StablingBay != "" {
			if sl, ok := slots[t.StablingBay]; ok {
				cp := *sl
				v.Slot = &cp
			}
		}
		idx.views[t.ID] = v
		idx.ids = append(idx.ids, t.ID)
	}
	sort.Strings(idx.ids)
	for _, c := range s.Certificates {
		if v, ok := idx.views[c.TrainsetID]; ok {
			v.Certificates = append(v.Certificates, c)
		}
	}
	for _, j := range s.JobCards {
		if v, ok := idx.views[j.TrainsetID]; ok {
			v.JobCards = append(v.JobCards, j)
		}
	}
	for _, b := range s.Contracts {
		if v, ok := idx.views[b.TrainsetID]; ok && b.TrainsetID != "" {
			// one contract per unit; the latest-ending one is authoritative
			if v.Contract == nil || b.End.After(v.Contract.End) {
				cp := b
				v.Contract = &cp
			}
		}
	}
	for _, c := range s.CleaningSlots {
		if v, ok := idx.views[c.TrainsetID]; ok && c.TrainsetID != "" {
			v.CleaningSlots = append(v.CleaningSlots, c)
		}
	}
	return idx
}

// View returns the records for one trainset.
func (i Index) View(id string) (TrainsetView, bool) {
	v, ok := i.views[id]
	if !ok {
		return TrainsetView{}, false
	}
	return *v, true
}

// IDs returns the indexed trainset ids in ascending order.
func (i Index) IDs() []string { return append([]string(nil), i.ids...) }

package simulate

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/kilianp07/induction/core/model"
)

// Attribute names a modifiable field of a trainset's state.
type Attribute string

const (
	AttrStatus             Attribute = "status"
	AttrMileage            Attribute = "mileage"
	AttrLastCleaned        Attribute = "last_cleaned"
	AttrStablingBay        Attribute = "stabling_bay"
	AttrCertificateExpired Attribute = "certificate_expired"
	AttrCertificateValid   Attribute = "certificate_valid"
	AttrJobCardOpen        Attribute = "job_card_open"
	AttrJobCardClosed      Attribute = "job_card_closed"
	AttrBrandingExposure   Attribute = "branding_exposure"
)

// Modification sets one attribute of one trainset. Value is decoded
// according to the attribute:
//
//	status               status string
//	mileage              number
//	last_cleaned         RFC 3339 timestamp
//	stabling_bay         bay id
//	certificate_expired  certificate type
//	certificate_valid    certificate type
//	job_card_open        priority number or {priority, description}
//	job_card_closed      job card id, or empty for every open card
//	branding_exposure    accumulated exposure of the unit's contract
type Modification struct {
	TrainsetID string    `json:"trainset_id" mapstructure:"trainset_id"`
	Attribute  Attribute `json:"attribute" mapstructure:"attribute"`
	Value      any       `json:"value" mapstructure:"value"`
}

// JobCardSpec describes a job card opened by a modification.
type JobCardSpec struct {
	Priority    int    `mapstructure:"priority"`
	Description string `mapstructure:"description"`
	Source      string `mapstructure:"source"`
}

// certificateGrant is how long a certificate forced valid stays valid.
const certificateGrant = 365 * 24 * time.Hour

func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func invalid(i int, m Modification, reason string) error {
	return &model.ValidationError{Field: fmt.Sprintf("modifications[%d].%s", i, m.Attribute), Reason: reason}
}

// Apply returns a modified clone of s. s itself is never touched.
// Modifications apply in order, so a later one sees the effect of earlier
// ones.
func Apply(s model.Snapshot, mods []Modification) (model.Snapshot, error) {
	c := s.Clone()
	for i, m := range mods {
		if err := apply(&c, i, m); err != nil {
			return model.Snapshot{}, err
		}
	}
	return c, nil
}

func apply(s *model.Snapshot, i int, m Modification) error {
	ti := -1
	for k := range s.Trainsets {
		if s.Trainsets[k].ID == m.TrainsetID {
			ti = k
			break
		}
	}
	if ti < 0 {
		return fmt.Errorf("modifications[%d]: %w: %s", i, model.ErrUnknownTrainset, m.TrainsetID)
	}
	t := &s.Trainsets[ti]

	switch m.Attribute {
	case AttrStatus:
		var v string
		if err := decode(m.Value, &v); err != nil {
			return invalid(i, m, err.Error())
		}
		st := model.Status(v)
		if !st.Known() {
			return invalid(i, m, fmt.Sprintf("unknown status %q", v))
		}
		t.Status = st
	case AttrMileage:
		var v float64
		if err := decode(m.Value, &v); err != nil || v < 0 {
			return invalid(i, m, "must be a non-negative number")
		}
		t.Mileage = v
	case AttrLastCleaned:
		var v time.Time
		if err := decode(m.Value, &v); err != nil {
			return invalid(i, m, "must be an RFC 3339 timestamp")
		}
		t.LastCleaned = v
	case AttrStablingBay:
		var v string
		if err := decode(m.Value, &v); err != nil {
			return invalid(i, m, err.Error())
		}
		t.StablingBay = v
	case AttrCertificateExpired, AttrCertificateValid:
		var v string
		if err := decode(m.Value, &v); err != nil {
			return invalid(i, m, err.Error())
		}
		ct := model.CertificateType(v)
		if !ct.Known() {
			return invalid(i, m, fmt.Sprintf("unknown certificate type %q", v))
		}
		if m.Attribute == AttrCertificateExpired {
			expireCertificate(s, t.ID, ct)
		} else {
			grantCertificate(s, t.ID, ct)
		}
	case AttrJobCardOpen:
		spec := JobCardSpec{Priority: 1}
		switch v := m.Value.(type) {
		case nil:
		case map[string]any:
			if err := decode(v, &spec); err != nil {
				return invalid(i, m, err.Error())
			}
		default:
			if err := decode(v, &spec.Priority); err != nil {
				return invalid(i, m, "must be a priority or a job card object")
			}
		}
		if spec.Priority < 1 || spec.Priority > 5 {
			return invalid(i, m, "priority must be within 1..5")
		}
		if spec.Source == "" {
			spec.Source = "what-if"
		}
		s.JobCards = append(s.JobCards, model.JobCard{
			ID:          fmt.Sprintf("WHATIF-%s-%d", t.ID, len(s.JobCards)+1),
			TrainsetID:  t.ID,
			Status:      model.JobOpen,
			Priority:    spec.Priority,
			Source:      spec.Source,
			Description: spec.Description,
			Created:     s.TakenAt,
		})
	case AttrJobCardClosed:
		var id string
		if m.Value != nil {
			if err := decode(m.Value, &id); err != nil {
				return invalid(i, m, err.Error())
			}
		}
		found := false
		for k := range s.JobCards {
			j := &s.JobCards[k]
			if j.TrainsetID == t.ID && (id == "" || j.ID == id) {
				j.Status = model.JobClosed
				found = true
			}
		}
		if id != "" && !found {
			return invalid(i, m, fmt.Sprintf("no job card %s on %s", id, t.ID))
		}
	case AttrBrandingExposure:
		var v float64
		if err := decode(m.Value, &v); err != nil || v < 0 {
			return invalid(i, m, "must be a non-negative number")
		}
		found := false
		for k := range s.Contracts {
			if s.Contracts[k].TrainsetID == t.ID {
				s.Contracts[k].Accumulated = v
				found = true
			}
		}
		if !found {
			return invalid(i, m, fmt.Sprintf("%s has no branding contract", t.ID))
		}
	default:
		return invalid(i, m, fmt.Sprintf("unknown attribute %q", m.Attribute))
	}
	return nil
}

func expireCertificate(s *model.Snapshot, id string, ct model.CertificateType) {
	for k := range s.Certificates {
		c := &s.Certificates[k]
		if c.TrainsetID != id || c.Type != ct {
			continue
		}
		c.Valid = false
		if c.End.After(s.TakenAt) {
			c.End = s.TakenAt
		}
		if !c.Start.Before(c.End) {
			c.Start = c.End.Add(-certificateGrant)
		}
	}
}

func grantCertificate(s *model.Snapshot, id string, ct model.CertificateType) {
	for k := range s.Certificates {
		c := &s.Certificates[k]
		if c.TrainsetID == id && c.Type == ct {
			c.Valid = true
			if c.Start.After(s.TakenAt) {
				c.Start = s.TakenAt
			}
			if !c.End.After(s.TakenAt) {
				c.End = s.TakenAt.Add(certificateGrant)
			}
			return
		}
	}
	s.Certificates = append(s.Certificates, model.Certificate{
		TrainsetID: id,
		Type:       ct,
		Start:      s.TakenAt,
		End:        s.TakenAt.Add(certificateGrant),
		Valid:      true,
		Issuer:     "what-if",
	})
}

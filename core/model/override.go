package model

import "time"

// Override is an operator-forced status for a trainset. Superseded and
// removed overrides are kept for audit; only one override per trainset is
// active at a time.
type Override struct {
	ID           string    `json:"id" yaml:"id"`
	TrainsetID   string    `json:"trainset_id" yaml:"trainset_id" validate:"required"`
	Status       Status    `json:"status" yaml:"status" validate:"required,oneof=revenue_service standby maintenance"`
	Reason       string    `json:"reason" yaml:"reason"`
	Author       string    `json:"author" yaml:"author"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	SupersededBy string    `json:"superseded_by,omitempty" yaml:"superseded_by,omitempty"`
	RemovedAt    time.Time `json:"removed_at,omitempty" yaml:"removed_at,omitempty"`
}

// Active reports whether the override still pins its trainset.
func (o Override) Active() bool { return o.SupersededBy == "" && o.RemovedAt.IsZero() }

// ActiveOverrides returns the active override per trainset. When several are
// active for the same id the latest CreatedAt wins, then the greater ID.
func ActiveOverrides(list []Override) map[string]Override {
	out := make(map[string]Override, len(list))
	for _, o := range list {
		if !o.Active() {
			continue
		}
		cur, ok := out[o.TrainsetID]
		if !ok || o.CreatedAt.After(cur.CreatedAt) || (o.CreatedAt.Equal(cur.CreatedAt) && o.ID > cur.ID) {
			out[o.TrainsetID] = o
		}
	}
	return out
}

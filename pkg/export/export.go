// Package export writes decision sets for depot hand-off.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/kilianp07/induction/core/model"
)

// WriteJSON writes the decision set to w in JSON format.
func WriteJSON(w io.Writer, ds model.DecisionSet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ds)
}

var csvHeader = []string{"trainset_id", "status", "rank", "score", "eligible", "pinned", "blocking_reasons", "estimated_service_hours"}

// WriteCSV writes one row per decision. Blocking reasons are joined with ';'.
func WriteCSV(w io.Writer, ds model.DecisionSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, d := range ds.Decisions {
		reasons := make([]string, len(d.BlockingReasons))
		for i, r := range d.BlockingReasons {
			reasons[i] = string(r)
		}
		rank := ""
		if d.Rank > 0 {
			rank = strconv.Itoa(d.Rank)
		}
		rec := []string{
			d.TrainsetID,
			string(d.Status),
			rank,
			strconv.FormatFloat(d.Score, 'f', -1, 64),
			strconv.FormatBool(d.Eligible),
			strconv.FormatBool(d.Pinned),
			strings.Join(reasons, ";"),
			strconv.FormatFloat(d.EstimatedServiceHours, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

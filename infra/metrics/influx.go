package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/induction/core/metrics"
	"github.com/kilianp07/induction/infra/logger"
)

// InfluxSink writes induction records to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDecisionSet writes one induction_decision point per trainset in a
// single batch.
func (s *InfluxSink) RecordDecisionSet(recs []coremetrics.DecisionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(recs))
	for _, r := range recs {
		p := write.NewPointWithMeasurement("induction_decision").
			AddTag("trainset_id", r.TrainsetID).
			AddTag("status", string(r.Status)).
			AddTag("eligible", strconv.FormatBool(r.Eligible)).
			AddTag("pinned", strconv.FormatBool(r.Pinned)).
			AddTag("run_id", r.RunID)
		if r.PrimaryReason != "" {
			p = p.AddTag("reason", string(r.PrimaryReason))
		}
		p = p.AddField("score", round3(r.Score)).
			AddField("rank", r.Rank).
			AddField("demand", r.Demand).
			AddField("shortfall", r.Shortfall).
			SetTime(r.Time)
		points = append(points, p)
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordConflict writes an induction_conflict point.
func (s *InfluxSink) RecordConflict(r coremetrics.ConflictRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("induction_conflict").
		AddTag("trainset_id", r.TrainsetID).
		AddTag("kind", string(r.Kind)).
		AddField("detail", r.Detail).
		SetTime(r.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOverride writes an override_applied point. Removals carry the
// action tag "removed".
func (s *InfluxSink) RecordOverride(r coremetrics.OverrideRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("override_applied").
		AddTag("trainset_id", r.TrainsetID).
		AddTag("status", string(r.Status)).
		AddTag("action", r.Action).
		AddTag("override_id", r.OverrideID).
		AddField("author", r.Author).
		AddField("reason", r.Reason).
		SetTime(r.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSimulation writes an induction_simulation point.
func (s *InfluxSink) RecordSimulation(r coremetrics.SimulationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("induction_simulation")
	if r.Scenario != "" {
		p = p.AddTag("scenario", r.Scenario)
	}
	p = p.AddField("modifications", r.Modifications).
		AddField("demand", r.Demand).
		AddField("added", r.Added).
		AddField("removed", r.Removed).
		AddField("shortfall_delta", r.ShortfallDelta).
		AddField("duration_ms", round3(r.Duration.Seconds()*1000)).
		SetTime(r.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

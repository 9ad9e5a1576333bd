//go:build integration

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/induction/app"
	"github.com/kilianp07/induction/config"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/infra/mqtt"
	"github.com/kilianp07/induction/internal/fleettest"
	"github.com/kilianp07/induction/test/util"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestService_PublishesDecisionsOverMQTT(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto unavailable: %v", err)
	}
	defer cleanup()

	dir := t.TempDir()
	s := fleettest.Fleet(25)
	fleettest.Expire(&s, fleettest.ID(7), model.CertSignalling)
	b, err := json.Marshal(s)
	require.NoError(t, err)
	fleetPath := filepath.Join(dir, "fleet.json")
	require.NoError(t, os.WriteFile(fleetPath, b, 0o644))

	cfg := config.Default()
	cfg.Store.Path = fleetPath
	cfg.History.Backend = "sqlite"
	cfg.History.Path = filepath.Join(dir, "decisions.db")
	cfg.HTTP.Addr = freeAddr(t)
	cfg.Cycle.Interval = 0
	cfg.MQTT = mqtt.Config{Enabled: true, Broker: broker, ClientID: "induction-it", QoS: 1}
	cfg.MQTT.SetDefaults()

	msgs, err := util.CollectMessages(broker, "display", "induction/#")
	require.NoError(t, err)
	defer msgs.Close()

	svc, err := app.New(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	base := "http://" + cfg.HTTP.Addr
	readyCtx, readyCancel := context.WithTimeout(ctx, util.HTTPServerTimeout)
	defer readyCancel()
	require.NoError(t, util.WaitForHTTP(readyCtx, base+"/healthz"))

	resp, err := http.Post(base+"/api/v1/optimize", "application/json", bytes.NewReader([]byte(`{"service_demand":20}`)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ds model.DecisionSet
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ds))
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		_, ok := msgs.Get("induction/trainset/TS-025")
		return ok
	}, 10*time.Second, 50*time.Millisecond)

	raw, ok := msgs.Get("induction/trainset/TS-007")
	require.True(t, ok)
	var m mqtt.TrainsetMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.False(t, m.Eligible)
	assert.Equal(t, []string{"certificate_expired:signalling"}, m.BlockingReasons)

	status, ok := msgs.Get("induction/status")
	require.True(t, ok)
	assert.Equal(t, "online", string(status))

	metricsCtx, metricsCancel := context.WithTimeout(ctx, util.MetricTimeout)
	defer metricsCancel()
	require.NoError(t, util.WaitForMetric(metricsCtx, base+"/metrics", `induction_runs_total{kind="optimize"} 1`))

	stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}
}

package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/induction/core/mqtt"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool        `json:"enabled"`
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	AuthMethod  string      `json:"auth_method"`
	QoS         byte        `json:"qos"`
	LWTTopic    string      `json:"lwt_topic"`
	LWTPayload  string      `json:"lwt_payload"`
	LWTQoS      byte        `json:"lwt_qos"`
	LWTRetain   bool        `json:"lwt_retain"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults applies defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "induction-engine"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "induction"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.LWTTopic == "" {
		c.LWTTopic = c.TopicPrefix + "/status"
		c.LWTPayload = "offline"
		c.LWTRetain = true
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	if c.QoS > 2 || c.LWTQoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	switch c.AuthMethod {
	case "", "username_password", "mtls", "both":
	default:
		return fmt.Errorf("unknown mqtt auth method %s", c.AuthMethod)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// PahoPublisher implements coremqtt.DecisionPublisher using Eclipse Paho.
type PahoPublisher struct {
	cli        pahoClient
	prefix     string
	qos        byte
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var _ coremqtt.DecisionPublisher = (*PahoPublisher)(nil)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoPublisher connects to the MQTT broker and marks the publisher
// online on the status topic.
func NewPahoPublisher(cfg Config) (*PahoPublisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_publisher")
	p := &PahoPublisher{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	statusTopic, statusQoS := cfg.LWTTopic, cfg.LWTQoS
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Publish(statusTopic, statusQoS, true, "online"); token.Wait() && token.Error() != nil {
			log.Errorf("status publish error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "mtls" || cfg.AuthMethod == "both" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s holds no certificate", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// RunSummary is the payload published on <prefix>/decisions/<run>.
type RunSummary struct {
	RunID         string         `json:"run_id"`
	Fingerprint   string         `json:"fingerprint"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Demand        int            `json:"service_demand"`
	EligibleCount int            `json:"eligible_count"`
	Shortfall     int            `json:"shortfall"`
	Counts        map[string]int `json:"counts"`
	Service       []string       `json:"service"`
	Conflicts     int            `json:"conflicts"`
}

// TrainsetMessage is the retained payload published on <prefix>/trainset/<id>.
type TrainsetMessage struct {
	RunID           string   `json:"run_id"`
	TrainsetID      string   `json:"trainset_id"`
	Status          string   `json:"status"`
	Score           float64  `json:"score"`
	Rank            int      `json:"rank,omitempty"`
	Eligible        bool     `json:"eligible"`
	Pinned          bool     `json:"pinned"`
	BlockingReasons []string `json:"blocking_reasons,omitempty"`
}

// Summary builds the run summary payload.
func Summary(runID string, ds model.DecisionSet) RunSummary {
	counts := make(map[string]int)
	for st, n := range ds.Counts() {
		counts[string(st)] = n
	}
	return RunSummary{
		RunID:         runID,
		Fingerprint:   ds.Fingerprint,
		GeneratedAt:   ds.GeneratedAt,
		Demand:        ds.Demand,
		EligibleCount: ds.EligibleCount,
		Shortfall:     ds.Shortfall,
		Counts:        counts,
		Service:       ds.WithStatus(model.StatusService),
		Conflicts:     len(ds.Conflicts),
	}
}

func trainsetMessage(runID string, d model.Decision) TrainsetMessage {
	m := TrainsetMessage{
		RunID:      runID,
		TrainsetID: d.TrainsetID,
		Status:     string(d.Status),
		Score:      d.Score,
		Rank:       d.Rank,
		Eligible:   d.Eligible,
		Pinned:     d.Pinned,
	}
	for _, r := range d.BlockingReasons {
		m.BlockingReasons = append(m.BlockingReasons, string(r))
	}
	return m
}

// DecisionsTopic returns the summary topic of a run.
func (p *PahoPublisher) DecisionsTopic(runID string) string {
	return fmt.Sprintf("%s/decisions/%s", p.prefix, runID)
}

// TrainsetTopic returns the retained topic of one trainset.
func (p *PahoPublisher) TrainsetTopic(id string) string {
	return fmt.Sprintf("%s/trainset/%s", p.prefix, id)
}

// PublishDecisionSet publishes the run summary then one retained message per
// trainset. It stops at the first message that fails after retries.
func (p *PahoPublisher) PublishDecisionSet(runID string, ds model.DecisionSet) error {
	if p.cli == nil || !p.cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	if err := p.publishJSON(p.DecisionsTopic(runID), false, Summary(runID, ds)); err != nil {
		return fmt.Errorf("publish run %s: %w", runID, err)
	}
	for _, d := range ds.Decisions {
		if err := p.publishJSON(p.TrainsetTopic(d.TrainsetID), true, trainsetMessage(runID, d)); err != nil {
			return fmt.Errorf("publish trainset %s: %w", d.TrainsetID, err)
		}
	}
	p.logger.Infow("decisions published", map[string]any{
		"run_id":    runID,
		"trainsets": len(ds.Decisions),
	})
	return nil
}

func (p *PahoPublisher) publishJSON(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d on %s failed: %v", attempt+1, topic, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return publishErr
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoPublisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

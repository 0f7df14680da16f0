package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	coremqtt "github.com/kilianp07/dspfactory/core/mqtt"
	"github.com/kilianp07/dspfactory/infra/logger"
)

// Invalidator drops a locally cached factory.
type Invalidator interface {
	Invalidate(sha string) bool
}

// Watcher listens to announcements from other instances sharing the same
// store and evicts the factories they replaced or deleted from the local
// cache.
type Watcher struct {
	cli    pahoClient
	topic  string
	qos    byte
	origin string
	target Invalidator
	log    logger.Logger
	seen   *prometheus.CounterVec
}

// NewWatcher connects a second client, <client_id>-watch, to the broker.
// reg may be nil.
func NewWatcher(cfg Config, target Invalidator, reg prometheus.Registerer) (*Watcher, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.SetClientID(cfg.ClientID + "-watch")
	// The announcer owns the status topic.
	opts.UnsetWill()
	seen := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dspfactory_peer_announcements_total",
		Help: "Announcements received from other instances",
	}, []string{"op", "result"})
	if reg != nil {
		if err := reg.Register(seen); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
			seen = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Watcher{
		cli:    cli,
		topic:  strings.TrimSuffix(cfg.TopicPrefix, "/") + "/+/+",
		qos:    cfg.QoS,
		origin: cfg.ClientID,
		target: target,
		log:    logger.New("mqtt_watcher"),
		seen:   seen,
	}, nil
}

// Start subscribes and blocks until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if token := w.cli.Subscribe(w.topic, w.qos, w.onMessage); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	<-ctx.Done()
	if w.cli.IsConnected() {
		w.cli.Disconnect(250)
	}
	return nil
}

func (w *Watcher) onMessage(_ paho.Client, msg paho.Message) {
	w.process(msg.Payload())
}

func (w *Watcher) process(payload []byte) {
	var a coremqtt.Announcement
	if err := json.Unmarshal(payload, &a); err != nil || a.SHAKey == "" {
		w.seen.WithLabelValues("", "malformed").Inc()
		w.log.Warnf("ignoring malformed announcement")
		return
	}
	if a.Origin == w.origin {
		w.seen.WithLabelValues(a.Op, "own").Inc()
		return
	}
	if w.target.Invalidate(a.SHAKey) {
		w.seen.WithLabelValues(a.Op, "evicted").Inc()
		w.log.Debugw("evicted cached factory", map[string]any{"sha_key": a.SHAKey, "op": a.Op, "origin": a.Origin})
		return
	}
	w.seen.WithLabelValues(a.Op, "not_cached").Inc()
}

package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremon "github.com/kilianp07/dspfactory/core/monitoring"
	coremqtt "github.com/kilianp07/dspfactory/core/mqtt"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	for path, data := range map[string][]byte{certFile: certPEM, keyFile: keyPEM, caFile: certPEM} {
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
	if _, err := (Config{UseTLS: true}).LoadTLSConfig(); err == nil {
		t.Fatalf("expected error without files")
	}
	empty := t.TempDir() + "/empty.pem"
	_ = os.WriteFile(empty, nil, 0600)
	if _, err := (Config{ClientCert: cert, ClientKey: key, CABundle: empty}).LoadTLSConfig(); err == nil {
		t.Fatalf("expected error for empty ca bundle")
	}
}

func TestNewClientOptions(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p", TopicPrefix: "dsp"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
	if !opts.WillEnabled || opts.WillTopic != "dsp/status" || string(opts.WillPayload) != "offline" || !opts.WillRetained {
		t.Fatalf("will options incorrect")
	}
	opts, _ = NewClientOptions(Config{Broker: "tcp://localhost:1883", Username: "u", AuthMethod: "certificate"})
	if opts.Username != "" {
		t.Fatalf("username should be skipped for certificate auth")
	}
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	if c.TopicPrefix != "dspfactory" || c.MaxRetries != 3 || c.BackoffMS != 100 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("disabled config should validate: %v", err)
	}
	c.Enabled = true
	if err := c.Validate(); err == nil {
		t.Fatalf("expected broker error")
	}
	c.Broker = "tcp://localhost:1883"
	c.QoS = 3
	if err := c.Validate(); err == nil {
		t.Fatalf("expected qos error")
	}
}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
}

func TestAnnounce(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoAnnouncer(Config{Broker: "tcp://localhost:1883", QoS: 1, Retain: true})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if len(mc.published) != 1 || mc.published[0].topic != "dspfactory/status" || mc.published[0].payload != "online" {
		t.Fatalf("online status not published: %+v", mc.published)
	}
	a := coremqtt.Announcement{EventID: "e1", Op: "stored", SHAKey: "ABC", Name: "sine", Backend: "archive", Libraries: []string{}}
	if err := cli.Announce(context.Background(), a); err != nil {
		t.Fatalf("announce: %v", err)
	}
	last := mc.published[len(mc.published)-1]
	if last.topic != "dspfactory/stored/ABC" || last.qos != 1 || !last.retained {
		t.Fatalf("unexpected publish %+v", last)
	}
	var got coremqtt.Announcement
	if err := json.Unmarshal([]byte(last.payload), &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.SHAKey != "ABC" || got.Op != "stored" || got.Name != "sine" || got.Origin != "dspfactory" {
		t.Fatalf("unexpected payload %+v", got)
	}

	cli.Close()
	cli.Close()
	if p := mc.published[len(mc.published)-1]; p.topic != "dspfactory/status" || p.payload != "offline" {
		t.Fatalf("offline status not published")
	}
	if err := cli.Announce(context.Background(), a); err != coremqtt.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{nil, fmt.Errorf("net fail"), nil}}
	withMock(t, mc)
	cli, err := NewPahoAnnouncer(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := cli.Announce(context.Background(), coremqtt.Announcement{Op: "stored", SHAKey: "A"}); err != nil {
		t.Fatalf("announce: %v", err)
	}
	// status + failed attempt + retry
	if len(mc.published) != 3 {
		t.Fatalf("expected retries, got %d publishes", len(mc.published))
	}
}

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) CapturePanic(any)    {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestAnnounceErrorCaptured(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{nil, fail, fail}}
	withMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	cli, err := NewPahoAnnouncer(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := cli.Announce(context.Background(), coremqtt.Announcement{Op: "deleted", SHAKey: "B"}); err == nil {
		t.Fatalf("expected error")
	}
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["sha_key"] != "B" || mon.tags["module"] != "mqtt" || mon.tags["op"] != "deleted" {
		t.Fatalf("tags not set: %v", mon.tags)
	}
}

func TestAnnounceStopsOnContextCancel(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{nil, fail, fail, fail}}
	withMock(t, mc)
	cli, err := NewPahoAnnouncer(Config{Broker: "tcp://localhost:1883", MaxRetries: 3, BackoffMS: 1000})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cli.Announce(ctx, coremqtt.Announcement{Op: "stored", SHAKey: "C"}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected a single attempt, got %d publishes", len(mc.published)-1)
	}
}

func TestConnectError(t *testing.T) {
	mc := &mockClient{connectErr: fmt.Errorf("refused")}
	withMock(t, mc)
	if _, err := NewPahoAnnouncer(Config{Broker: "tcp://localhost:1883"}); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestNew_Disabled(t *testing.T) {
	a, err := New(Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := a.(NopAnnouncer); !ok {
		t.Fatalf("expected NopAnnouncer, got %T", a)
	}
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// mockClient implements pahoClient and paho.Client for tests
type mockClient struct {
	opts        *paho.ClientOptions
	published   []published
	publishErrs []error
	connectErr  error
	handlers    map[string]paho.MessageHandler
	mu          sync.Mutex
}

func (m *mockClient) IsConnected() bool { return true }

func (m *mockClient) handler(topic string) paho.MessageHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	m.published = append(m.published, published{topic, qos, retained, body})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = map[string]paho.MessageHandler{}
	}
	m.handlers[topic] = cb
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/dspfactory/app"
	"github.com/kilianp07/dspfactory/auth"
	"github.com/kilianp07/dspfactory/config"
	"github.com/kilianp07/dspfactory/connectors/remote"
	"github.com/kilianp07/dspfactory/core/backend/archive"
	"github.com/kilianp07/dspfactory/core/catalog"
	"github.com/kilianp07/dspfactory/core/factory"
	"github.com/kilianp07/dspfactory/core/module"
	coremqtt "github.com/kilianp07/dspfactory/core/mqtt"
	"github.com/kilianp07/dspfactory/infra/blob/s3"
	"github.com/kilianp07/dspfactory/test/util"
)

// junitReport is a minimal representation of a JUnit XML report. The E2E
// suite writes such a report so CI systems can display the results.
type junitReport struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name    string  `xml:"name,attr"`
	Failure *string `xml:"failure,omitempty"`
	Time    float64 `xml:"time,attr"`
}

// writeJUnit writes the provided report to the given path.
func writeJUnit(path string, rep junitReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(rep)
}

func start(ctx context.Context, t *testing.T, name string, fn func(context.Context) (string, func(), error)) string {
	t.Helper()
	url, cleanup, err := fn(ctx)
	if err != nil {
		t.Skipf("unable to start %s: %v", name, err)
	}
	t.Cleanup(cleanup)
	t.Logf("%s started at %s", name, url)
	return url
}

// Test_E2E_FactoryPipeline runs the service against MinIO, Mosquitto and
// InfluxDB and drives it through the remote client: push, announce, fetch,
// delete.
func Test_E2E_FactoryPipeline(t *testing.T) {
	if !util.DockerAvailable() {
		t.Skip("docker not available")
	}
	began := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	minioURL := start(ctx, t, "minio", util.StartMinio)
	brokerURL := start(ctx, t, "mosquitto", util.StartMosquitto)
	influxURL := start(ctx, t, "influx", util.StartInflux)

	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.HTTP.Token = "e2e"
	cfg.Store.Driver = "s3"
	cfg.Store.S3 = s3.Config{
		Bucket:          "factories",
		Endpoint:        minioURL,
		AccessKeyID:     util.MinioUser,
		SecretAccessKey: util.MinioPassword,
		PathStyle:       true,
		CreateBucket:    true,
	}
	cfg.Catalog = module.Config{Type: "sqlite", Conf: map[string]any{"path": filepath.Join(t.TempDir(), "catalog.db")}}
	cfg.Cache.Enabled = true
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = brokerURL
	cfg.MQTT.QoS = 1
	cfg.Metrics.Sinks = []module.Config{
		{Type: "prometheus"},
		{Type: "influx", Conf: map[string]any{
			"url": influxURL, "token": util.InfluxToken, "org": util.InfluxOrg, "bucket": util.InfluxBucket,
		}},
	}
	require.NoError(t, cfg.Validate())

	announcements := make(chan coremqtt.Announcement, 8)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(brokerURL).SetClientID("e2e-sub"))
	tok := sub.Connect()
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	defer sub.Disconnect(100)
	tok = sub.Subscribe("dspfactory/+/+", 1, func(_ paho.Client, m paho.Message) {
		var a coremqtt.Announcement
		if json.Unmarshal(m.Payload(), &a) == nil {
			announcements <- a
		}
	})
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())

	svc, err := app.New(ctx, cfg)
	require.NoError(t, err)
	defer svc.Close()
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = svc.Run(runCtx) }()
	select {
	case <-svc.Ready():
	case <-time.After(10 * time.Second):
		t.Fatalf("service not ready")
	}

	client, err := remote.New("http://"+svc.Addr(), remote.WithAuthorizer(auth.StaticToken("e2e")))
	require.NoError(t, err)

	f := archive.New(factory.Identity{
		Name:      "karplus",
		DSPCode:   "process = pm.ks(1, 0.5);",
		Libraries: []string{"physmodels.lib"},
	}, "void compute(int n, float** in, float** out);\n", archive.WithCompileOptions("-ftz", "2"))
	entry, err := client.PushFactory(ctx, f, factory.WriteOptions{Binary: true, Small: true})
	require.NoError(t, err)
	require.Equal(t, factory.ComputeSHAKey(f.DSPCode(), f.CompileOptions()...), entry.SHAKey)

	select {
	case a := <-announcements:
		require.Equal(t, "stored", a.Op)
		require.Equal(t, entry.SHAKey, a.SHAKey)
		require.Equal(t, []string{"physmodels.lib"}, a.Libraries)
	case <-time.After(10 * time.Second):
		t.Fatalf("no stored announcement")
	}

	list, err := client.List(ctx, catalog.Query{Name: "karplus"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	readers, err := factory.NewReaders(archive.NewReader())
	require.NoError(t, err)
	back, err := client.Fetch(ctx, entry.SHAKey, readers, factory.WriteOptions{})
	require.NoError(t, err)
	require.Equal(t, f.DSPCode(), back.DSPCode())
	var text bytes.Buffer
	require.NoError(t, back.Write(&text, factory.WriteOptions{}))
	require.Contains(t, text.String(), "karplus")

	ok, err := client.Delete(ctx, entry.SHAKey)
	require.NoError(t, err)
	require.True(t, ok)
	select {
	case a := <-announcements:
		require.Equal(t, "deleted", a.Op)
	case <-time.After(10 * time.Second):
		t.Fatalf("no deleted announcement")
	}

	influx := NewInfluxClient(influxURL, util.InfluxOrg, util.InfluxBucket, util.InfluxToken)
	defer influx.Close()
	require.Eventually(t, func() bool {
		n, err := influx.CountEvents(ctx, "store", "5m")
		return err == nil && n > 0
	}, 30*time.Second, 500*time.Millisecond)

	dir := t.TempDir()
	rep := junitReport{Name: "e2e", Tests: 1, Cases: []junitTestCase{{Name: t.Name(), Time: time.Since(began).Seconds()}}}
	if err := writeJUnit(filepath.Join(dir, "e2e.xml"), rep); err != nil {
		t.Logf("write junit: %v", err)
	}
}

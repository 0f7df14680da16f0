package e2e

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxClient queries the factory events the service writes. It hides the
// token/org/bucket plumbing.
type InfluxClient struct {
	bucket string
	client influxdb2.Client
	query  api.QueryAPI
}

// NewInfluxClient creates a client for a running server.
func NewInfluxClient(url, org, bucket, token string) *InfluxClient {
	c := influxdb2.NewClient(url, token)
	return &InfluxClient{bucket: bucket, client: c, query: c.QueryAPI(org)}
}

// CountEvents returns the number of factory_event points recorded for op
// during the last window.
func (c *InfluxClient) CountEvents(ctx context.Context, op, window string) (int, error) {
	flux := fmt.Sprintf(`from(bucket:%q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._measurement == "factory_event" and r.op == %q and r._field == "bytes")`, c.bucket, window, op)
	res, err := c.query.Query(ctx, flux)
	if err != nil {
		return 0, err
	}
	defer res.Close()
	n := 0
	for res.Next() {
		n++
	}
	return n, res.Err()
}

// Close releases the underlying client resources.
func (c *InfluxClient) Close() { c.client.Close() }

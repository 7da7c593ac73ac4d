package stats

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// ProjectStatsSink records that a principal gained access to an entity. The
// write is bookkeeping for project activity dashboards, not part of any
// authorization decision.
type ProjectStatsSink interface {
	UpdateProjectStats(ctx context.Context, principalUID uuid.UUID, entityUID uuid.UUID, objectType string, timestamp time.Time) error
	Close()
}

type influxStatsSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewInfluxStatsSink writes project stats data points through the
// non-blocking write API, matching the fire-and-forget contract.
func NewInfluxStatsSink(url, token, org, bucket string) ProjectStatsSink {
	client := influxdb2.NewClient(url, token)
	return &influxStatsSink{
		client:   client,
		writeAPI: client.WriteAPI(org, bucket),
	}
}

func (s *influxStatsSink) UpdateProjectStats(ctx context.Context, principalUID uuid.UUID, entityUID uuid.UUID, objectType string, timestamp time.Time) error {
	point := influxdb2.NewPoint(
		"project.stats",
		map[string]string{
			"principal_uid": principalUID.String(),
			"object_type":   objectType,
		},
		map[string]any{
			"entity_uid": entityUID.String(),
		},
		timestamp,
	)
	s.writeAPI.WritePoint(point)
	return nil
}

func (s *influxStatsSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

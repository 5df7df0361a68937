package escalation

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/squadwarden/warden/internal/escalation"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

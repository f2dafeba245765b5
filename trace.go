package include

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "impractical.co/include"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

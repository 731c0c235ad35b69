package loader

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("@agentuity/go-fragment/loader")

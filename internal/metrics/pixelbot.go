package metrics

import "fmt"

// Reply outcomes recorded by the pipeline.
const (
	OutcomeEmpty  = "empty"
	OutcomeImage  = "image"
	OutcomeText   = "text"
	OutcomeNotice = "notice"
	OutcomeError  = "error"
)

var (
	MessagesTotal  = Collector.Counter("pixelbot_messages_total", "Inbound webhook messages received", "")
	ImagesTracked  = Collector.Gauge("pixelbot_images_tracked", "Generated images awaiting cleanup", "")
	ImagesEvicted  = Collector.Counter("pixelbot_images_evicted_total", "Generated images removed by the janitor", "")
	ImagesSwept    = Collector.Counter("pixelbot_images_swept_total", "Generated images removed by a full sweep", "")
	ImagesServed   = Collector.Counter("pixelbot_images_served_total", "Image fetches answered with content", "")
	ImagesNotFound = Collector.Counter("pixelbot_images_not_found_total", "Image fetches answered with 404", "")

	GenerationLatency = Collector.Histogram("pixelbot_generation_latency_seconds", "Image generation latency in seconds", "",
		[]float64{1, 2, 5, 10, 20, 30, 60, 120})
)

// Reply returns the counter for a reply outcome.
func Reply(outcome string) *Counter {
	return Collector.Counter("pixelbot_replies_total", "Acknowledgments returned to the webhook, by outcome",
		fmt.Sprintf(`outcome=%q`, outcome))
}

// PipelineError returns the counter for failures at a pipeline stage.
func PipelineError(stage string) *Counter {
	return Collector.Counter("pixelbot_pipeline_errors_total", "Pipeline failures, by stage",
		fmt.Sprintf(`stage=%q`, stage))
}

package metrics

// HTTPDurationBuckets defines latency buckets for HTTP request duration metrics.
var HTTPDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// StreamDurationBuckets covers a chat answer from first byte to the done event.
var StreamDurationBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// TimeToFirstEventBuckets covers rewrite plus retrieval before the sources event.
var TimeToFirstEventBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

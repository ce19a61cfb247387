package metrics

import (
	"strconv"
	"time"
)

// JobCompleted records a successful job completion
func JobCompleted(jobType string, duration time.Duration) {
	JobsTotal.WithLabelValues(jobType, "completed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// JobFailed records a job failure
func JobFailed(jobType string, duration time.Duration) {
	JobsTotal.WithLabelValues(jobType, "failed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// WorkerReconnected records a job store reconnection
func WorkerReconnected() {
	WorkerReconnectsTotal.Inc()
}

// NarrativeTask records the outcome of one narrative task
func NarrativeTask(kind string, ok bool) {
	status := "succeeded"
	if !ok {
		status = "failed"
	}
	NarrativeTasksTotal.WithLabelValues(kind, status).Inc()
}

// NarrativeFallback records a device narrative replaced by the template
func NarrativeFallback() {
	NarrativeFallbacksTotal.Inc()
}

// LatexPass records the duration of one compiler pass
func LatexPass(pass int, duration time.Duration) {
	LatexPassDuration.WithLabelValues(strconv.Itoa(pass)).Observe(duration.Seconds())
}

// Artifact records the size of a produced artifact
func Artifact(mime string, size int64) {
	ArtifactBytes.WithLabelValues(mime).Observe(float64(size))
}

// Download records a prepared download
func Download(mime string) {
	DownloadsTotal.WithLabelValues(mime).Inc()
}

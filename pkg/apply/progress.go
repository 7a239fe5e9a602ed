package apply

import "log"

// NopProgress drops progress events, used when no event transport is
// configured.
type NopProgress struct{}

func (NopProgress) Progress(string, int, int) {}

func (NopProgress) Completed(jobId string, message string) {
	log.Printf("apply %s completed: %s", jobId, message)
}

func (NopProgress) Error(jobId string, message string) {
	log.Printf("apply %s failed: %s", jobId, message)
}

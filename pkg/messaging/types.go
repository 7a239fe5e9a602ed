package messaging

// ChangeTopic names one of the progress event topics.
type ChangeTopic string

const (
	ApplyProgressTopic  = ChangeTopic("apply_progress")
	ApplyCompletedTopic = ChangeTopic("apply_completed")
	ApplyErrorTopic     = ChangeTopic("apply_error")
)

// RabbitConfig carries the connection settings for the progress transport.
type RabbitConfig struct {
	Url    string
	VHost  string
	Prefix string
}

// ProgressEvent is published per batch; Current never decreases for a
// given job id.
type ProgressEvent struct {
	JobId   string `json:"job_id"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// StatusEvent is the terminal event of a job, published exactly once on
// either the completed or the error topic.
type StatusEvent struct {
	JobId   string `json:"job_id"`
	Message string `json:"message"`
}

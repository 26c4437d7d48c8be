package httpapi

// Config defines presentation transport settings.
type Config struct {
	Addr string
	// HubHistory is how many change-sets are retained for stream resume.
	HubHistory int
	// QueueDepth bounds each connection's pending updates.
	QueueDepth int
}

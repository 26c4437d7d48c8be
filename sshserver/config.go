package sshserver

// Config defines SSH console settings.
type Config struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	Prompt             string
	QueueDepth         int
}

package processor

// JobState is the coarse progress of a job run, as reported to listeners.
type JobState string

const (
	JobStateRunning  JobState = "RUNNING"
	JobStateError    JobState = "ERROR"
	JobStateFinished JobState = "FINISHED"
)

// A Listener follows a job run.
type Listener interface {
	TextStatus(runID, msg string)
	JobState(runID string, s JobState)
}

// ConfigSaver persists machine configuration, such as disabled feeders
// and nozzle tip calibration.
type ConfigSaver interface {
	SaveConfig() error
}

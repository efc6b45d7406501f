package app

// StopReason labels why the app is shutting down. It is logged at the top
// of the stop sequence so operators can tell a signal from a fatal
// supervisor error.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

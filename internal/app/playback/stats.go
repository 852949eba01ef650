package playback

// Stats counts engine decisions.
type Stats struct {
	FalseEndSignals    int `json:"false_end_signals"`   // Rejected end-of-item signals
	RestartCorrections int `json:"restart_corrections"` // Corrective seeks after a stream restart
	Rebuilds           int `json:"rebuilds"`            // Full buffer window rebuilds
	WindowAdvances     int `json:"window_advances"`     // Gapless window shifts
	Retries            int `json:"retries"`             // Automatic retries after transient failures
	Replays            int `json:"replays"`             // Repeat-one replays
	Failures           int `json:"failures"`            // Head item failures
}

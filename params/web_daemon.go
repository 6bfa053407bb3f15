package params

type WebDaemonConfig struct {
	ListenerConfig

	// DataDir holds the daemon's state db.
	// If empty, tracker snapshots are not persisted.
	DataDir string

	Tracker *SpeedTrackerConfig

	// Influx, if non-nil and with a URL, exports speeds and trips.
	Influx *InfluxConfig

	// RegistrySize bounds the number of live cat trackers.
	RegistrySize int
}

func DefaultWebListenerConfig() ListenerConfig {
	return ListenerConfig{
		Network: "tcp",
		Address: "localhost:3000",
	}
}

func DefaultWebDaemonConfig() *WebDaemonConfig {
	return &WebDaemonConfig{
		DataDir:        DefaultDatadirRoot,
		ListenerConfig: DefaultWebListenerConfig(),
		Tracker:        DefaultSpeedTrackerConfig(),
		Influx:         DefaultInfluxConfig(),
		RegistrySize:   DefaultRegistrySize,
	}
}

func DefaultTestWebDaemonConfig() *WebDaemonConfig {
	return &WebDaemonConfig{
		DataDir: "",
		ListenerConfig: ListenerConfig{
			Network: "tcp",
			Address: "localhost:3333",
		},
		Tracker:      DefaultSpeedTrackerConfig(),
		Influx:       nil,
		RegistrySize: 16,
	}
}

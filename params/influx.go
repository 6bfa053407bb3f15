package params

import "os"

type InfluxConfig struct {
	URL    string
	Token  string `json:"-"`
	Org    string
	Bucket string
}

// Enabled reports whether there's anywhere to export to.
func (c *InfluxConfig) Enabled() bool {
	return c != nil && c.URL != ""
}

// DefaultInfluxConfig reads the INFLUXDB_* environment.
// An unset INFLUXDB_URL leaves export disabled.
func DefaultInfluxConfig() *InfluxConfig {
	return &InfluxConfig{
		URL:    os.Getenv("INFLUXDB_URL"),
		Token:  os.Getenv("INFLUXDB_TOKEN"),
		Org:    os.Getenv("INFLUXDB_ORG"),
		Bucket: os.Getenv("INFLUXDB_BUCKET"),
	}
}

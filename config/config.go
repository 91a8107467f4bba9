// Package config handles library configuration loading.
package config

// Config holds all simulator settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Device  DeviceConfig  `yaml:"device"`
	Kernels KernelConfig  `yaml:"kernels"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	ToStdout bool   `yaml:"to_stdout"`
	Level    string `yaml:"level"`
	File     string `yaml:"file"`
}

// DeviceConfig holds opencl device selection settings.
type DeviceConfig struct {
	// Device type filter: "cpu", "gpu" or "all".
	Type string `yaml:"type"`

	// Substring matched against device names; empty matches any device.
	Match string `yaml:"match"`
}

// KernelConfig points at the opencl program sources.
type KernelConfig struct {
	// Directory containing the device programs. Overridable via the
	// LIDAR_KERNEL_DIR environment variable.
	Dir string `yaml:"dir"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			ToStdout: true,
			Level:    "INFO",
		},
		Device: DeviceConfig{
			Type: "all",
		},
		Kernels: KernelConfig{
			Dir: "kernels",
		},
	}
}

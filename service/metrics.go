package service

import (
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// MustRegisterMetrics registers the service metrics on the given registry.
func MustRegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(buildInfo)
}

// BuildInfo describes the running binary.
type BuildInfo struct {
	GoVersion string
	Version   string
	Revision  string
}

// ReadBuildInfo returns the build information embedded in the binary, "undefined" when unknown.
func ReadBuildInfo() BuildInfo {
	info := BuildInfo{GoVersion: "undefined", Version: "undefined", Revision: "undefined"}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	if bi.Main.Version != "" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			info.Revision = s.Value
		}
	}
	return info
}

// SampleBuildInfo sets the service_build_info gauge, once on startup is enough.
func SampleBuildInfo() BuildInfo {
	info := ReadBuildInfo()
	buildInfo.With(prometheus.Labels{
		"goversion": info.GoVersion,
		"version":   info.Version,
		"revision":  info.Revision,
	}).Set(1.0)
	return info
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "service_build_info",
		Help: "Build information of the service",
	},
	[]string{"revision", "version", "goversion"},
)

// Package nls downloads translated string bundles and exports the
// extension's translatable strings for the localization service.
package nls

import (
	"github.com/specialistvlad/buildgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("nls_download", &registry.RegisteredAction{
		Description: "Downloads a localization archive and unpacks per-locale bundles.",
		NewInput:    func() any { return new(DownloadInput) },
		Fn:          OnRunDownload,
	})
	r.RegisterAction("nls_export", &registry.RegisteredAction{
		Description: "Writes translatable strings as an XLIFF 1.2 document.",
		NewInput:    func() any { return new(ExportInput) },
		Fn:          OnRunExport,
	})
}

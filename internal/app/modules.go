package app

import (
	"io"

	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/specialistvlad/buildgrid/modules/archive"
	"github.com/specialistvlad/buildgrid/modules/bundle"
	"github.com/specialistvlad/buildgrid/modules/clean"
	"github.com/specialistvlad/buildgrid/modules/copyfiles"
	"github.com/specialistvlad/buildgrid/modules/env_vars"
	"github.com/specialistvlad/buildgrid/modules/exec"
	"github.com/specialistvlad/buildgrid/modules/generate"
	"github.com/specialistvlad/buildgrid/modules/manifest"
	"github.com/specialistvlad/buildgrid/modules/nls"
	"github.com/specialistvlad/buildgrid/modules/notify"
	"github.com/specialistvlad/buildgrid/modules/print"
	"github.com/specialistvlad/buildgrid/modules/publish"
	"github.com/specialistvlad/buildgrid/modules/vsix"
)

// coreModules is the definitive list of all modules that are compiled into
// the buildgrid binary. print writes to outW; process output is logged.
func coreModules(outW io.Writer) []registry.Module {
	return []registry.Module{
		&exec.Module{},
		&clean.Module{},
		&copyfiles.Module{},
		&generate.Module{},
		&manifest.Module{},
		&bundle.Module{},
		&nls.Module{},
		&archive.Module{},
		&vsix.Module{},
		&publish.Module{},
		&notify.Module{},
		&print.Module{Out: outW},
		&env_vars.Module{},
	}
}

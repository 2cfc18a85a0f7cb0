package cmd

import (
	"github.com/pterm/pterm"

	"github.com/paulschiretz/pgl-sortbackup/pkg/config"
)

// RunInit writes the example configuration to path.
func RunInit(path string, force bool) error {
	if err := config.Generate(path, force); err != nil {
		return err
	}
	pterm.Success.Printfln("Wrote example configuration to %s, edit the sources and targets before the first run.", path)
	return nil
}

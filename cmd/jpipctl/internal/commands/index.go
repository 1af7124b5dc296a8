package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/codeninja55/go-jpip/cmd/jpipctl/internal/config"
	"github.com/codeninja55/go-jpip/cmd/jpipctl/internal/ui"
	"github.com/codeninja55/go-jpip/jpeg2000"
)

// IndexCmd parses a JP2/JPX/J2C image and prints its parsed index: one row
// per codestream (following hyperlinks for a JPX fragment table), its
// coding parameters and packet count.
type IndexCmd struct {
	Target string `arg:"" help:"Image path, joined with --images-folder (a leading '/' is stripped first)"`
}

// Run builds the image's index and renders it per cfg.Format.
func (c *IndexCmd) Run(cfg *config.GlobalConfig) error {
	ui.PrintBanner()

	logger := log.Default()
	path := cfg.ResolveTarget(c.Target)
	logger.Info("indexing image", "path", path)

	idx := jpeg2000.NewImageIndex(path)
	if err := idx.BuildIndex(); err != nil {
		return fmt.Errorf("failed to index image: %w", err)
	}

	logger.Info("index built",
		"codestreams", idx.Info.NumCodestreams,
		"hyperlinked", len(idx.HyperLinks) > 0,
		"width", idx.Info.Width,
		"height", idx.Info.Height,
	)

	return ui.RenderImageIndex(os.Stdout, idx, cfg.Format)
}

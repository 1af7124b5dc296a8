// Package config holds the jpipctl CLI's global configuration: flags
// shared across every subcommand, plus the server-side configuration
// values the core JPIP components depend on (images_folder, max_chunk_size)
// per the wire contract's Configuration section.
package config

// GlobalConfig holds CLI-wide flags, parsed once by kong and passed to
// every subcommand's Run method.
type GlobalConfig struct {
	LogLevel string `name:"log-level" enum:"trace,debug,info,warn,error,fatal" default:"info" help:"Log verbosity"`
	Debug    bool   `name:"debug" help:"Enable caller-annotated debug logging"`
	Pretty   bool   `name:"pretty" default:"true" negatable:"" help:"Pretty-print logs (disable for JSON logs)"`
	Format   Format `name:"format" enum:"table,json" default:"table" help:"Output format for index/cache-model dumps"`

	ImagesFolder string `name:"images-folder" default:"." type:"existingdir" help:"Root path prefix images are resolved against"`
	MaxChunkSize int    `name:"max-chunk-size" default:"65536" help:"Upper bound on the max_len passed to GenerateChunk per call"`
}

// Format selects how jpipctl renders tabular output.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ResolveTarget joins a JPIP 'target' parameter with ImagesFolder, per the
// wire contract: a leading '/' on the requested target is stripped before
// concatenation with the configured root.
func (c *GlobalConfig) ResolveTarget(target string) string {
	for len(target) > 0 && target[0] == '/' {
		target = target[1:]
	}
	if c.ImagesFolder == "" {
		return target
	}
	return c.ImagesFolder + "/" + target
}

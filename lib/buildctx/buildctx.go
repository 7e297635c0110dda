// Package buildctx materializes a filtered build context, either as a
// temporary directory tree (streamed into a running workload) or as a
// flat path-to-content mapping (embedded into the workload manifest).
package buildctx

const (
	// MaxEmbedFileSize is the per-file ceiling for embedded contexts.
	// Larger files are skipped and reported, never truncated.
	MaxEmbedFileSize = 1 << 20

	// Base64Suffix marks mapping entries whose content is base64
	// encoded because the file is not valid UTF-8 text.
	Base64Suffix = ".b64"
)

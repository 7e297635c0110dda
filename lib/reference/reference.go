// Package reference validates and normalizes target image references.
//
// The reference is the only user-controlled string that ends up inside
// cluster resource names and exec argv, so parsing here is the security
// boundary: anything that could alter command structure or escape the
// build namespace is rejected.
package reference

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	distref "github.com/distribution/reference"
)

// MaxLength is the longest accepted reference, matching the registry
// repository name limit.
const MaxLength = 255

// dockerHubAuthHost is the legacy Docker Hub endpoint used as the auths
// key when the reference does not name a registry.
const dockerHubAuthHost = "https://index.docker.io/v1/"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid image reference")

var (
	imageSegmentRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	registryHostRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*(:[0-9]+)?$`)
	tagRe          = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// shellMeta are characters that could change command structure if the
// reference ever reached a shell-adjacent call site.
const shellMeta = ";&|`$@'\"\\"

// Ref is a validated image reference.
type Ref struct {
	raw   string
	image string // repository part, without tag
	tag   string // empty if untagged
}

// Parse validates a candidate image reference and returns the parsed
// form. Rules are checked in order so the returned error names the
// first violated one.
func Parse(s string) (*Ref, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: reference is empty", ErrInvalid)
	}
	if len(s) > MaxLength {
		return nil, fmt.Errorf("%w: length %d exceeds %d", ErrInvalid, len(s), MaxLength)
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return nil, fmt.Errorf("%w: contains control character", ErrInvalid)
		}
		if r == ' ' {
			return nil, fmt.Errorf("%w: contains whitespace", ErrInvalid)
		}
	}
	if strings.ContainsAny(s, shellMeta) {
		return nil, fmt.Errorf("%w: contains shell metacharacter", ErrInvalid)
	}
	if strings.Contains(s, "..") {
		return nil, fmt.Errorf("%w: contains path traversal sequence", ErrInvalid)
	}
	if strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("%w: starts with '/'", ErrInvalid)
	}
	if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return nil, fmt.Errorf("%w: starts or ends with '-'", ErrInvalid)
	}

	image, tag, tagged := splitTag(s)
	if tagged && !tagRe.MatchString(tag) {
		return nil, fmt.Errorf("%w: malformed tag %q", ErrInvalid, tag)
	}
	if image != strings.ToLower(image) {
		return nil, fmt.Errorf("%w: repository must be lowercase", ErrInvalid)
	}

	segments := strings.Split(image, "/")
	// A first segment containing '.' or ':' is a registry host,
	// optionally with a port.
	if len(segments) > 1 && strings.ContainsAny(segments[0], ".:") {
		if !registryHostRe.MatchString(segments[0]) {
			return nil, fmt.Errorf("%w: malformed registry %q", ErrInvalid, segments[0])
		}
		segments = segments[1:]
	}
	if len(segments) < 2 {
		return nil, fmt.Errorf("%w: expected namespace/repository", ErrInvalid)
	}
	for _, seg := range segments {
		if !imageSegmentRe.MatchString(seg) {
			return nil, fmt.Errorf("%w: malformed path segment %q", ErrInvalid, seg)
		}
	}

	return &Ref{raw: s, image: image, tag: tag}, nil
}

// splitTag splits on the last ':' unless it belongs to a registry port
// (i.e. a '/' follows it).
func splitTag(s string) (image, tag string, tagged bool) {
	i := strings.LastIndex(s, ":")
	if i < 0 || strings.Contains(s[i+1:], "/") {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

// String returns the reference exactly as accepted.
func (r *Ref) String() string { return r.raw }

// Image returns the repository part without the tag.
func (r *Ref) Image() string { return r.image }

// Tag returns the tag, or empty if the reference is untagged.
func (r *Ref) Tag() string { return r.tag }

// Slug returns the reference with path and tag separators replaced by
// '-', lowercased. Safe for use inside cluster resource names.
func (r *Ref) Slug() string {
	slug := strings.ReplaceAll(r.raw, "/", "-")
	slug = strings.ReplaceAll(slug, ":", "-")
	return strings.ToLower(slug)
}

// RegistryAuthHost returns the auths key for the registry this
// reference pushes to. Derivation is best effort: references that do
// not normalize cleanly fall back to the Docker Hub endpoint.
func (r *Ref) RegistryAuthHost() string {
	named, err := distref.ParseNormalizedNamed(r.image)
	if err != nil {
		return dockerHubAuthHost
	}
	if domain := distref.Domain(named); domain != "docker.io" {
		return domain
	}
	return dockerHubAuthHost
}

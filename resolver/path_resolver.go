// Package resolver maps decoded request paths onto files beneath a root
// directory.
//
// Containment is always decided on the canonical path, after symlinks and
// dot segments have been resolved by the filesystem, and is compared
// component by component so that /srv/www2 is never taken to be inside
// /srv/www.
package resolver

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nczempin/httpd-go-uring/errors"
	"github.com/nczempin/httpd-go-uring/protocol"
)

// IndexFile is served in place of a directory
const IndexFile = "index.html"

// Resolution is the outcome of resolving one request path.
// Path is set only when Status is protocol.StatusOK.
type Resolution struct {
	Status int
	Path   string
}

// Root is a canonical, read-only root directory shared by all connections
type Root struct {
	dir   string
	parts []string
}

// NewRoot canonicalizes dir, which must be an existing directory
func NewRoot(dir string) (*Root, error) {
	if dir == "" {
		return nil, errors.NewInvalidArgumentError("root directory is empty")
	}

	canonical, err := canonicalize(dir)
	if err != nil {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorCanonicalizeFailure, "failed to canonicalize root "+dir, err)
	}

	fi, err := os.Stat(canonical)
	if err != nil {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorStatFailure, "failed to stat root "+canonical, err)
	}
	if !fi.IsDir() {
		return nil, errors.NewInvalidArgumentError("root is not a directory: " + canonical)
	}

	return &Root{dir: canonical, parts: splitComponents(canonical)}, nil
}

// Dir returns the canonical root directory
func (r *Root) Dir() string {
	return r.dir
}

// Resolve maps a decoded, root-relative request path to a status and,
// for 200, the canonical file path. Only unexpected stat or
// canonicalization failures are returned as errors.
func (r *Root) Resolve(requestPath string) (Resolution, error) {
	// No lexical cleaning here: ".." and symlinks are left for the
	// filesystem to interpret, and containment is checked afterwards.
	candidate := r.dir + string(filepath.Separator) + requestPath
	indexLookup := false

	fi, err := os.Stat(candidate)
	if err == nil && fi.IsDir() {
		candidate = filepath.Join(candidate, IndexFile)
		indexLookup = true
		fi, err = os.Stat(candidate)
	}

	if err != nil {
		switch {
		case isNotExist(err):
			if indexLookup {
				// Directory without an index; listings are never exposed
				return Resolution{Status: protocol.StatusForbidden}, nil
			}
			return Resolution{Status: protocol.StatusNotFound}, nil
		case isDenied(err):
			return Resolution{Status: protocol.StatusForbidden}, nil
		default:
			return Resolution{}, errors.NewFilesystemError(errors.FilesystemErrorStatFailure, "failed to stat "+candidate, err)
		}
	}

	canonical, err := canonicalize(candidate)
	if err != nil {
		if isNotExist(err) {
			// Removed between stat and canonicalization
			return Resolution{Status: protocol.StatusNotFound}, nil
		}
		if isDenied(err) {
			return Resolution{Status: protocol.StatusForbidden}, nil
		}
		return Resolution{}, errors.NewFilesystemError(errors.FilesystemErrorCanonicalizeFailure, "failed to canonicalize "+candidate, err)
	}

	if !r.Contains(canonical) {
		return Resolution{Status: protocol.StatusForbidden}, nil
	}

	// FIFOs, devices and directories named index.html are never opened
	if !fi.Mode().IsRegular() {
		return Resolution{Status: protocol.StatusForbidden}, nil
	}

	return Resolution{Status: protocol.StatusOK, Path: canonical}, nil
}

// Contains reports whether canonical lies at or beneath the root,
// comparing path components rather than string prefixes.
func (r *Root) Contains(canonical string) bool {
	parts := splitComponents(canonical)
	if len(parts) < len(r.parts) {
		return false
	}
	for i, p := range r.parts {
		if parts[i] != p {
			return false
		}
	}
	return true
}

func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}

// splitComponents returns the components of a clean absolute path.
// The first element is the volume name, empty on Unix.
func splitComponents(path string) []string {
	path = filepath.Clean(path)
	vol := filepath.VolumeName(path)
	rest := strings.Trim(path[len(vol):], string(filepath.Separator))

	parts := []string{vol}
	if rest == "" {
		return parts
	}
	return append(parts, strings.Split(rest, string(filepath.Separator))...)
}

func isNotExist(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist) ||
		stderrors.Is(err, syscall.ENOTDIR) ||
		stderrors.Is(err, syscall.ENAMETOOLONG)
}

// isDenied covers permission failures and symlink loops
func isDenied(err error) bool {
	return stderrors.Is(err, fs.ErrPermission) || stderrors.Is(err, syscall.ELOOP)
}

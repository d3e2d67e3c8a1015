package gac

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/EWSoftware/SHFB-sub006/errors"
)

// Resolver maps an assembly reference to a file path.
// ok is false when the assembly was not found; err reports a failure to look.
type Resolver interface {
	Resolve(ctx context.Context, ref Reference) (path string, ok bool, err error)
}

// probeExtensions are tried in order for every search directory.
var probeExtensions = []string{".dll", ".exe"}

// DirResolver probes search directories in order.
// Results are cached by display name. DirResolver is thread-safe.
type DirResolver struct {
	// Verify, when set, accepts or rejects a candidate file, for example by
	// comparing the identity recorded in it with ref.
	Verify func(path string, ref Reference) (bool, error)
	cache  map[string]string
	dirs   []string
	mu     sync.RWMutex
}

// NewDirResolver creates a resolver over dirs.
func NewDirResolver(dirs ...string) *DirResolver {
	return &DirResolver{
		dirs:  append([]string(nil), dirs...),
		cache: make(map[string]string),
	}
}

// Dirs returns the search directories.
func (r *DirResolver) Dirs() []string {
	return r.dirs
}

// Resolve implements Resolver.
func (r *DirResolver) Resolve(ctx context.Context, ref Reference) (string, bool, error) {
	if ref.Name == "" {
		return "", false, errors.InvalidInput(errors.PhaseResolve, "reference without a name")
	}
	key := ref.String()
	r.mu.RLock()
	path, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return path, true, nil
	}

	for _, dir := range r.dirs {
		for _, ext := range probeExtensions {
			if err := ctx.Err(); err != nil {
				return "", false, err
			}
			candidate := filepath.Join(dir, ref.Name+ext)
			fi, err := os.Stat(candidate)
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
			if r.Verify != nil {
				match, err := r.Verify(candidate, ref)
				if err != nil {
					return "", false, errors.New(errors.PhaseResolve, errors.KindMalformedMetadata).
						Path(candidate).
						Cause(err).
						Detail("verify %s", ref.Name).
						Build()
				}
				if !match {
					Logger().Debug("candidate rejected", zap.String("path", candidate), zap.String("ref", key))
					continue
				}
			}
			r.mu.Lock()
			r.cache[key] = candidate
			r.mu.Unlock()
			Logger().Debug("resolved assembly", zap.String("ref", key), zap.String("path", candidate))
			return candidate, true, nil
		}
	}
	return "", false, nil
}

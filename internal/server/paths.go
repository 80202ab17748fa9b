package server

import (
	"path/filepath"
	"strings"

	"pdfrag/internal/domain"
)

// allowedPath maps a path named by a request to the file to load. Only the
// configured default document and files under the document root are readable.
func (s *Server) allowedPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		if s.opts.DefaultPath == "" {
			return "", domain.InputError("no document path given and no default configured")
		}
		return s.opts.DefaultPath, nil
	}
	if s.opts.DefaultPath != "" && resolve(path) == resolve(s.opts.DefaultPath) {
		return s.opts.DefaultPath, nil
	}
	if s.opts.DocumentRoot == "" {
		s.logger.Warn("rejected load outside the default document", "path", path)
		return "", domain.InputError("only the default document may be loaded")
	}
	root := resolve(s.opts.DocumentRoot)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	target := resolve(path)
	if !within(root, target) {
		s.logger.Warn("rejected load outside the document root", "path", path, "root", root)
		return "", domain.InputError("path is outside the document root")
	}
	return target, nil
}

// resolve returns the absolute path with symlinks evaluated. A missing file keeps
// its name under its resolved directory.
func resolve(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

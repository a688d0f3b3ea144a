package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/dharsanguruparan/ScribeDrop/internal/model"
)

// SecureFilename reduces name to a flat ASCII filename: directory parts are
// dropped, accents folded, whitespace becomes '_', and anything outside
// [A-Za-z0-9._-] is removed. Leading and trailing '.' and '_' are trimmed, so
// the result may be empty.
func SecureFilename(name string) string {
	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case r > unicode.MaxASCII:
			continue
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case r == '.' || r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return strings.Trim(strings.Join(strings.Fields(b.String()), "_"), "._")
}

// StagingDirName maps an email address to a single safe directory name.
func StagingDirName(email string) string {
	name := strings.ReplaceAll(email, "@", "_at_")
	name = strings.NewReplacer("/", "_", `\`, "_", "\x00", "_").Replace(name)
	return strings.ReplaceAll(name, "..", "__")
}

// stage writes sub's bytes to <root>/<staging dir>/<id><ext>.
func (o *Orchestrator) stage(sub model.Submission) (model.StagedFile, error) {
	ext := filepath.Ext(SecureFilename(sub.Filename))
	unique := o.newID() + ext
	dir := filepath.Join(o.uploadRoot, StagingDirName(sub.Email))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return model.StagedFile{}, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, unique)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return model.StagedFile{}, fmt.Errorf("create staged file %s: %w", path, err)
	}
	if _, err := f.Write(sub.Data); err != nil {
		f.Close()
		os.Remove(path)
		return model.StagedFile{}, fmt.Errorf("write staged file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return model.StagedFile{}, fmt.Errorf("close staged file %s: %w", path, err)
	}
	return model.StagedFile{Path: path, UniqueName: unique}, nil
}

// cleanup removes a staged file. Failure is logged and otherwise ignored.
func (o *Orchestrator) cleanup(staged model.StagedFile) {
	if err := os.Remove(staged.Path); err != nil {
		o.log.Error("error removing local file", "kind", model.KindCleanup, "path", staged.Path, "err", err)
		return
	}
	o.log.Info("cleaned up local file", "path", staged.Path)
}

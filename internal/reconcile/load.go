package reconcile

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/claimrecon/internal/model"
)

// BatchFile is the on-disk form of a multi-profile run. JSON input is
// accepted as well since it is valid YAML.
type BatchFile struct {
	Profiles []model.ProfileBatch `yaml:"profiles"`
}

// DecodeBatch reads a batch file from r.
func DecodeBatch(r io.Reader) ([]model.ProfileBatch, error) {
	var f BatchFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, eris.Wrap(err, "reconcile: decode batch")
	}
	for i := range f.Profiles {
		if f.Profiles[i].ProfileID == "" {
			return nil, eris.Errorf("reconcile: profile %d has no profile_id", i)
		}
		numberDocuments(&f.Profiles[i])
	}
	return f.Profiles, nil
}

// LoadBatchFile reads a batch file from disk. Documents with a path and no
// inline content are read relative to the batch file's directory.
func LoadBatchFile(path string) ([]model.ProfileBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: open batch file")
	}
	defer f.Close() //nolint:errcheck

	batches, err := DecodeBatch(f)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	for i := range batches {
		for j := range batches[i].Documents {
			doc := &batches[i].Documents[j]
			if doc.Content != "" || doc.Path == "" {
				continue
			}
			p := doc.Path
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, p)
			}
			b, err := os.ReadFile(p)
			if err != nil {
				return nil, eris.Wrapf(err, "reconcile: read document %s", doc.Path)
			}
			doc.Content = string(b)
		}
	}
	return batches, nil
}

// numberDocuments assigns file-order sequences when a profile carries no
// ingestion sequences at all.
func numberDocuments(b *model.ProfileBatch) {
	for _, d := range b.Documents {
		if d.IngestionSequence != 0 {
			return
		}
	}
	for i := range b.Documents {
		b.Documents[i].IngestionSequence = int64(i + 1)
	}
}

package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
)

// LoadFile reads a multi-document YAML manifest file into a Store. Empty
// documents are skipped; documents without kind or name are rejected.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation,
			fmt.Sprintf("cannot open manifest file %q", path))
	}
	defer f.Close()

	return Load(f)
}

// Load reads multi-document YAML from r into a Store.
func Load(r io.Reader) (*Store, error) {
	store := NewStore()
	dec := yaml.NewDecoder(r)

	for i := 0; ; i++ {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation,
				fmt.Sprintf("malformed yaml in document %d", i))
		}
		if len(doc) == 0 {
			continue
		}

		m := &Manifest{Object: &unstructured.Unstructured{Object: doc}}
		if m.Object.GetKind() == "" || m.Object.GetName() == "" {
			return nil, chiroperrors.Newf(chiroperrors.ErrCodeValidation,
				"document %d is missing kind or metadata.name", i)
		}
		if _, err := m.GroupVersionResource(); err != nil {
			return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation,
				fmt.Sprintf("document %d", i))
		}
		if err := store.Register(m); err != nil {
			return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation, "duplicate document")
		}
	}

	return store, nil
}

package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	diagerr "github.com/tvqphuoc01/diagram-mcp/pkg/errors"
)

//go:embed data/*.yaml
var embeddedData embed.FS

// Document is one provider's slice of catalog data as delivered by a Source.
// Err marks a provider that could not be read; only that provider degrades.
type Document struct {
	Provider Provider
	Records  []ServiceRecord
	Err      error
}

// Source delivers provider documents. Load returns an error only when the
// source as a whole is unavailable.
type Source interface {
	Name() string
	Documents(ctx context.Context) ([]Document, error)
}

// LoadReport summarizes what Load kept and what it skipped.
type LoadReport struct {
	Source         string              `json:"source"`
	Loaded         map[Provider]int    `json:"loaded"`
	Skipped        int                 `json:"skipped"`
	SkippedEntries []string            `json:"skipped_entries,omitempty"`
	ProviderErrors map[Provider]string `json:"provider_errors,omitempty"`
}

// Degraded reports whether any provider or entry was dropped.
func (r *LoadReport) Degraded() bool {
	return r.Skipped > 0 || len(r.ProviderErrors) > 0
}

// Load reads every provider document from src and builds the catalog.
// Malformed entries are skipped and counted; unreadable providers are
// recorded in the report. A catalog with no records is a load failure.
func Load(ctx context.Context, src Source) (*Catalog, *LoadReport, error) {
	logger := zerolog.Ctx(ctx)

	docs, err := src.Documents(ctx)
	if err != nil {
		return nil, nil, diagerr.NewCatalogLoadError(src.Name(), err)
	}

	report := &LoadReport{
		Source:         src.Name(),
		Loaded:         make(map[Provider]int),
		ProviderErrors: make(map[Provider]string),
	}
	b := newBuilder(src.Name())

	sort.SliceStable(docs, func(i, j int) bool {
		return providerRank(docs[i].Provider) < providerRank(docs[j].Provider)
	})

	for _, doc := range docs {
		if doc.Err != nil {
			report.ProviderErrors[doc.Provider] = doc.Err.Error()
			logger.Warn().Err(doc.Err).Str("provider", string(doc.Provider)).Msg("provider catalog unavailable")
			continue
		}
		for _, rec := range doc.Records {
			rec.Provider = doc.Provider
			if err := b.add(rec); err != nil {
				report.Skipped++
				report.SkippedEntries = append(report.SkippedEntries, fmt.Sprintf("%s: %v", doc.Provider, err))
				logger.Debug().Err(err).Str("provider", string(doc.Provider)).Msg("skipping catalog entry")
				continue
			}
			report.Loaded[doc.Provider]++
		}
	}

	if len(b.records) == 0 {
		return nil, report, diagerr.NewCatalogLoadError(src.Name(), errors.New("no valid service records"))
	}

	cat := b.build()
	logger.Info().
		Str("source", src.Name()).
		Int("services", cat.Len()).
		Int("skipped", report.Skipped).
		Int("degraded_providers", len(report.ProviderErrors)).
		Msg("service catalog loaded")
	return cat, report, nil
}

// LoadEmbedded loads the catalog shipped with the binary.
func LoadEmbedded(ctx context.Context) (*Catalog, *LoadReport, error) {
	return Load(ctx, EmbeddedSource())
}

func providerRank(p Provider) int {
	for i, known := range DefaultProviderOrder {
		if p == known {
			return i
		}
	}
	return len(DefaultProviderOrder)
}

// providerDocument is the YAML layout of a provider file.
type providerDocument struct {
	Provider string          `yaml:"provider"`
	Version  int             `yaml:"version"`
	Services []ServiceRecord `yaml:"services"`
}

// fsSource reads one YAML document per provider from a filesystem.
type fsSource struct {
	name string
	fsys fs.FS
}

// EmbeddedSource serves the provider documents compiled into the binary.
func EmbeddedSource() Source {
	sub, err := fs.Sub(embeddedData, "data")
	if err != nil {
		panic(err)
	}
	return &fsSource{name: "embedded", fsys: sub}
}

// DirSource reads *.yaml provider documents from dir.
func DirSource(dir string) Source {
	return &fsSource{name: dir, fsys: os.DirFS(dir)}
}

// FSSource reads *.yaml provider documents from the root of fsys.
func FSSource(name string, fsys fs.FS) Source {
	return &fsSource{name: name, fsys: fsys}
}

func (s *fsSource) Name() string { return s.name }

func (s *fsSource) Documents(ctx context.Context) ([]Document, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := fs.Glob(s.fsys, pattern)
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no provider documents found in %s", s.name)
	}
	sort.Strings(files)

	docs := make([]Document, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i] = s.decode(file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *fsSource) decode(file string) Document {
	stem := strings.TrimSuffix(strings.TrimSuffix(path.Base(file), ".yaml"), ".yml")
	doc := Document{Provider: Provider(strings.ToLower(stem))}

	raw, err := fs.ReadFile(s.fsys, file)
	if err != nil {
		doc.Err = fmt.Errorf("read %s: %w", file, err)
		return doc
	}
	var pd providerDocument
	if err := yaml.Unmarshal(raw, &pd); err != nil {
		doc.Err = fmt.Errorf("decode %s: %w", file, err)
		return doc
	}
	if pd.Provider != "" {
		doc.Provider = Provider(strings.ToLower(pd.Provider))
	}
	if !doc.Provider.Valid() {
		doc.Err = fmt.Errorf("%s: unknown provider %q", file, doc.Provider)
		return doc
	}
	doc.Records = pd.Services
	return doc
}

// GroupByProvider splits flat records into one document per provider in
// first-seen order. Sources backed by tables use it to rebuild documents.
func GroupByProvider(records []ServiceRecord) []Document {
	var docs []Document
	index := make(map[Provider]int)
	for _, rec := range records {
		i, ok := index[rec.Provider]
		if !ok {
			i = len(docs)
			index[rec.Provider] = i
			docs = append(docs, Document{Provider: rec.Provider})
		}
		docs[i].Records = append(docs[i].Records, rec)
	}
	return docs
}

// Package catalog provides the Service Catalog: the read-only, multi-provider
// registry of diagram node classes that every lookup resolves against.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Provider identifies a cloud provider namespace.
type Provider string

const (
	AWS          Provider = "aws"
	Azure        Provider = "azure"
	GCP          Provider = "gcp"
	IBM          Provider = "ibm"
	AlibabaCloud Provider = "alibabacloud"
)

// DefaultProviderOrder is the tie-break order used when no provider is preferred.
var DefaultProviderOrder = []Provider{AWS, Azure, GCP, IBM, AlibabaCloud}

// ParseProvider accepts a provider name in any case. Empty input is valid
// and means "no provider".
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if p == "" || p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	for _, known := range DefaultProviderOrder {
		if p == known {
			return true
		}
	}
	return false
}

// Category is a provider-agnostic service grouping such as "compute" or "database".
type Category string

// ServiceRecord is a single catalog entry. Records are never mutated once
// the catalog is built.
type ServiceRecord struct {
	Provider    Provider `json:"provider" yaml:"-"`
	Category    Category `json:"category" yaml:"category"`
	Name        string   `json:"name" yaml:"name"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases"`
	ImportPath  string   `json:"import_path" yaml:"import_path,omitempty"`
	IconRef     string   `json:"icon_ref" yaml:"icon"`
	ServiceCode string   `json:"service_code,omitempty" yaml:"service_code,omitempty"`
}

// Key is the (provider, lower-case name) identity of the record.
func (r *ServiceRecord) Key() string {
	return string(r.Provider) + "/" + strings.ToLower(r.Name)
}

// ImportModule is the Python module that defines the node class.
func (r *ServiceRecord) ImportModule() string {
	if m, ok := strings.CutSuffix(r.ImportPath, "."+r.Name); ok && m != "" {
		return m
	}
	return fmt.Sprintf("diagrams.%s.%s", r.Provider, r.Category)
}

var (
	classNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	categoryRe  = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// normalize fills derived fields and validates the record.
func normalize(rec ServiceRecord) (ServiceRecord, error) {
	rec.Name = strings.TrimSpace(rec.Name)
	rec.Category = Category(strings.ToLower(strings.TrimSpace(string(rec.Category))))

	if !rec.Provider.Valid() {
		return rec, fmt.Errorf("unknown provider %q", rec.Provider)
	}
	if rec.Name == "" {
		return rec, fmt.Errorf("missing name")
	}
	if !classNameRe.MatchString(rec.Name) {
		return rec, fmt.Errorf("name %q is not a class identifier", rec.Name)
	}
	if rec.Category == "" {
		return rec, fmt.Errorf("%s: missing category", rec.Name)
	}
	if !categoryRe.MatchString(string(rec.Category)) {
		return rec, fmt.Errorf("%s: invalid category %q", rec.Name, rec.Category)
	}

	lowerName := strings.ToLower(rec.Name)
	seen := make(map[string]bool, len(rec.Aliases))
	aliases := make([]string, 0, len(rec.Aliases))
	for _, a := range rec.Aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || a == lowerName || seen[a] {
			continue
		}
		seen[a] = true
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	rec.Aliases = aliases

	rec.ImportPath = strings.TrimSpace(rec.ImportPath)
	switch {
	case rec.ImportPath == "":
		rec.ImportPath = rec.ImportModule() + "." + rec.Name
	case !strings.HasSuffix(rec.ImportPath, "."+rec.Name):
		return rec, fmt.Errorf("%s: import path %q does not end in the class name", rec.Name, rec.ImportPath)
	}
	switch {
	case rec.IconRef == "":
		rec.IconRef = fmt.Sprintf("resources/%s/%s/%s.png", rec.Provider, rec.Category, lowerName)
	case !strings.Contains(rec.IconRef, "/"):
		rec.IconRef = fmt.Sprintf("resources/%s/%s/%s", rec.Provider, rec.Category, rec.IconRef)
	}
	return rec, nil
}

// Catalog is the immutable service registry. It is safe for concurrent
// readers without locking.
type Catalog struct {
	source     string
	byProvider map[Provider][]*ServiceRecord
	byKey      map[string]*ServiceRecord
	hash       string
}

// New builds a catalog from explicit records. Unlike Load it is strict:
// an invalid or duplicate record is an error.
func New(records ...ServiceRecord) (*Catalog, error) {
	b := newBuilder("memory")
	for _, rec := range records {
		if err := b.add(rec); err != nil {
			return nil, err
		}
	}
	return b.build(), nil
}

// MustNew is New for fixed fixtures; it panics on error.
func MustNew(records ...ServiceRecord) *Catalog {
	c, err := New(records...)
	if err != nil {
		panic(err)
	}
	return c
}

// Source names where the catalog was loaded from.
func (c *Catalog) Source() string { return c.source }

// Len returns the number of records across all providers.
func (c *Catalog) Len() int { return len(c.byKey) }

// Hash is a content hash over every record, stable across load order.
func (c *Catalog) Hash() string { return c.hash }

// Providers returns the providers that have at least one record, in the
// default provider order.
func (c *Catalog) Providers() []Provider {
	var out []Provider
	for _, p := range DefaultProviderOrder {
		if len(c.byProvider[p]) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Records returns the provider's records ordered by category then name.
// The slice is a copy; the records are shared and must not be modified.
func (c *Catalog) Records(p Provider) []*ServiceRecord {
	recs := c.byProvider[p]
	out := make([]*ServiceRecord, len(recs))
	copy(out, recs)
	return out
}

// All returns every record, grouped by provider in default provider order.
func (c *Catalog) All() []*ServiceRecord {
	out := make([]*ServiceRecord, 0, len(c.byKey))
	for _, p := range DefaultProviderOrder {
		out = append(out, c.byProvider[p]...)
	}
	return out
}

// LookupExact finds a record by provider and case-insensitive name.
func (c *Catalog) LookupExact(p Provider, name string) (*ServiceRecord, bool) {
	rec, ok := c.byKey[string(p)+"/"+strings.ToLower(strings.TrimSpace(name))]
	return rec, ok
}

// Categories lists the distinct categories of a provider, sorted.
func (c *Catalog) Categories(p Provider) []Category {
	seen := make(map[Category]bool)
	var out []Category
	for _, rec := range c.byProvider[p] {
		if !seen[rec.Category] {
			seen[rec.Category] = true
			out = append(out, rec.Category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// builder accumulates records before the catalog is frozen.
type builder struct {
	source  string
	records map[string]*ServiceRecord
}

func newBuilder(source string) *builder {
	return &builder{source: source, records: make(map[string]*ServiceRecord)}
}

func (b *builder) add(rec ServiceRecord) error {
	norm, err := normalize(rec)
	if err != nil {
		return err
	}
	if _, dup := b.records[norm.Key()]; dup {
		return fmt.Errorf("duplicate service %s/%s", norm.Provider, norm.Name)
	}
	b.records[norm.Key()] = &norm
	return nil
}

func (b *builder) build() *Catalog {
	c := &Catalog{
		source:     b.source,
		byProvider: make(map[Provider][]*ServiceRecord),
		byKey:      b.records,
	}
	for _, rec := range b.records {
		c.byProvider[rec.Provider] = append(c.byProvider[rec.Provider], rec)
	}
	for _, recs := range c.byProvider {
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].Category != recs[j].Category {
				return recs[i].Category < recs[j].Category
			}
			return recs[i].Name < recs[j].Name
		})
	}
	c.hash = hashRecords(c.All())
	return c
}

func hashRecords(recs []*ServiceRecord) string {
	h := sha256.New()
	for _, r := range recs {
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s\n",
			r.Provider, r.Category, r.Name, strings.Join(r.Aliases, ","), r.ImportPath, r.IconRef, r.ServiceCode)
	}
	return hex.EncodeToString(h.Sum(nil))
}

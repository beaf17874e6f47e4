package codegen

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/decision/diagram"
	"github.com/tvqphuoc01/diagram-mcp/decision/extract"
	"github.com/tvqphuoc01/diagram-mcp/decision/relate"
	diagerr "github.com/tvqphuoc01/diagram-mcp/pkg/errors"
)

// Node is a resolved entity ready to be written out.
type Node struct {
	// EntityID is the extraction ID the node came from.
	EntityID string
	// Var is an identifier unique within the model and valid in every
	// target syntax.
	Var    string
	Label  string
	Record *catalog.ServiceRecord
}

// Link connects two nodes of the same model.
type Link struct {
	From     *Node
	To       *Node
	Label    string
	Directed bool
}

// Cluster groups nodes of one category.
type Cluster struct {
	Title    string
	Category catalog.Category
	Nodes    []*Node
}

// Model is the template input: nodes in mention order and links in edge
// order. Templates must treat it as read-only.
type Model struct {
	Type diagram.Type
	// Format selects the template; empty means the type's default.
	Format diagram.Format
	Title  string
	Nodes  []*Node
	Links  []Link
}

// BuildModel drops unresolved entities and the edges that touch them. It
// fails with an EmptyArchitecture error when nothing is left to draw.
func BuildModel(entities []extract.Entity, edges []relate.Edge, t diagram.Type, title string) (*Model, error) {
	m := &Model{Type: t, Title: strings.TrimSpace(title)}
	if m.Title == "" {
		m.Title = t.Title()
	}

	byID := make(map[string]*Node)
	names := newNamer()
	for _, e := range entities {
		if !e.IsResolved() {
			continue
		}
		n := &Node{
			EntityID: e.ID,
			Var:      names.next(e.Resolved.Record.Name),
			Label:    DisplayLabel(e.RoleText),
			Record:   e.Resolved.Record,
		}
		byID[e.ID] = n
		m.Nodes = append(m.Nodes, n)
	}
	if len(m.Nodes) == 0 {
		return nil, diagerr.NewEmptyArchitectureError()
	}

	for _, e := range edges {
		from, to := byID[e.From], byID[e.To]
		if from == nil || to == nil || from == to {
			continue
		}
		m.Links = append(m.Links, Link{From: from, To: to, Label: e.Label, Directed: e.Directed})
	}
	return m, nil
}

// Clusters groups the nodes of every category that two or more nodes
// share, ordered by the first node of each group. Nodes in no cluster are
// returned separately.
func (m *Model) Clusters() ([]Cluster, []*Node) {
	counts := make(map[catalog.Category]int)
	for _, n := range m.Nodes {
		counts[n.Record.Category]++
	}

	var clusters []Cluster
	var loose []*Node
	index := make(map[catalog.Category]int)
	for _, n := range m.Nodes {
		c := n.Record.Category
		if counts[c] < 2 {
			loose = append(loose, n)
			continue
		}
		i, ok := index[c]
		if !ok {
			i = len(clusters)
			index[c] = i
			clusters = append(clusters, Cluster{Title: CategoryTitle(c), Category: c})
		}
		clusters[i].Nodes = append(clusters[i].Nodes, n)
	}
	return clusters, loose
}

// HasLabels reports whether any link carries a label.
func (m *Model) HasLabels() bool {
	for _, l := range m.Links {
		if l.Label != "" {
			return true
		}
	}
	return false
}

// Records returns the distinct service records of the model sorted by key.
func (m *Model) Records() []*catalog.ServiceRecord {
	seen := make(map[string]*catalog.ServiceRecord)
	for _, n := range m.Nodes {
		seen[n.Record.Key()] = n.Record
	}
	out := make([]*catalog.ServiceRecord, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// titleCase builds a fresh caser per call; a Caser keeps state and must not be
// shared between goroutines.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// DisplayLabel is the node caption for a phrase from the description.
// Phrases written with capitals ("API Gateway", "FooCache") keep their
// spelling; lower-case phrases are title-cased.
func DisplayLabel(phrase string) string {
	phrase = strings.Join(strings.Fields(phrase), " ")
	if strings.IndexFunc(phrase, unicode.IsUpper) >= 0 {
		return phrase
	}
	return titleCase(phrase)
}

// CategoryTitle turns a category into a cluster caption: "database"
// becomes "Database", short ones such as "ml" are upper-cased.
func CategoryTitle(c catalog.Category) string {
	s := strings.ReplaceAll(string(c), "_", " ")
	if len(s) <= 3 {
		return strings.ToUpper(s)
	}
	return titleCase(s)
}

// reserved holds Python keywords and builtins the generated scripts use,
// plus Mermaid keywords that cannot be node ids.
var reserved = map[string]bool{
	"and": true, "as": true, "assert": true, "async": true, "await": true,
	"break": true, "class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "false": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true,
	"in": true, "is": true, "lambda": true, "none": true, "nonlocal": true,
	"not": true, "or": true, "pass": true, "raise": true, "return": true,
	"true": true, "try": true, "while": true, "with": true, "yield": true,
	"diagram": true, "cluster": true, "edge": true,
	"end": true, "graph": true, "subgraph": true, "style": true,
	"click": true, "default": true, "participant": true, "actor": true,
	"note": true, "loop": true, "alt": true, "opt": true, "par": true,
}

// namer hands out unique snake_case identifiers.
type namer struct {
	used map[string]bool
}

func newNamer() *namer { return &namer{used: make(map[string]bool)} }

func (n *namer) next(name string) string {
	base := SnakeCase(name)
	if base == "" {
		base = "node"
	}
	if unicode.IsDigit(rune(base[0])) {
		base = "n_" + base
	}
	if reserved[base] {
		base += "_"
	}
	v := base
	for i := 2; n.used[v]; i++ {
		v = base + "_" + strconv.Itoa(i)
	}
	n.used[v] = true
	return v
}

// SnakeCase converts a class-style name to snake_case: "ElastiCache"
// becomes "elasti_cache", "APIGateway" becomes "api_gateway" and "EC2"
// becomes "ec2".
func SnakeCase(name string) string {
	runes := []rune(name)
	var sb strings.Builder
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "_") {
				sb.WriteByte('_')
			}
			continue
		}
		if unicode.IsUpper(r) && i > 0 && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "_") {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower) {
				sb.WriteByte('_')
			}
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return strings.TrimSuffix(sb.String(), "_")
}

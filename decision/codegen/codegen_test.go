package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/decision/diagram"
	"github.com/tvqphuoc01/diagram-mcp/decision/extract"
	"github.com/tvqphuoc01/diagram-mcp/decision/matcher"
	"github.com/tvqphuoc01/diagram-mcp/decision/relate"
	diagerr "github.com/tvqphuoc01/diagram-mcp/pkg/errors"
)

var testCatalog = catalog.MustNew(
	catalog.ServiceRecord{Provider: catalog.AWS, Category: "network", Name: "ELB"},
	catalog.ServiceRecord{Provider: catalog.AWS, Category: "compute", Name: "EC2"},
	catalog.ServiceRecord{Provider: catalog.AWS, Category: "compute", Name: "Lambda"},
	catalog.ServiceRecord{Provider: catalog.AWS, Category: "database", Name: "RDS"},
)

func entity(id, role, service string) extract.Entity {
	e := extract.Entity{ID: id, RoleText: role, Count: 1}
	if service != "" {
		rec, ok := testCatalog.LookupExact(catalog.AWS, service)
		if !ok {
			panic("no record " + service)
		}
		e.Resolved = &matcher.MatchResult{Record: rec, Score: 0.9, Kind: matcher.KindAlias}
	}
	return e
}

// listTemplate writes one line per node and link. It claims Mermaid
// unless told otherwise.
type listTemplate struct {
	typ    diagram.Type
	format diagram.Format
}

func (t listTemplate) DiagramType() diagram.Type { return t.typ }
func (t listTemplate) Format() diagram.Format {
	if t.format == "" {
		return diagram.Mermaid
	}
	return t.format
}
func (t listTemplate) Render(m *Model) (string, error) {
	lines := []string{string(t.Format())}
	for _, n := range m.Nodes {
		lines = append(lines, n.Var+"="+n.Record.Name+":"+n.Label)
	}
	for _, l := range m.Links {
		lines = append(lines, l.From.Var+">"+l.To.Var+":"+l.Label)
	}
	return strings.Join(lines, "\n"), nil
}

type failingTemplate struct{}

func (failingTemplate) DiagramType() diagram.Type { return diagram.Class }
func (failingTemplate) Format() diagram.Format   { return diagram.Mermaid }
func (failingTemplate) Render(*Model) (string, error) {
	return "", errors.New("boom")
}

func TestBuildModel(t *testing.T) {
	entities := []extract.Entity{
		entity("n1", "load balancer", "ELB"),
		entity("n2", "FooCache", ""),
		entity("n3", "servers", "EC2"),
	}
	edges := []relate.Edge{
		{From: "n1", To: "n2", Label: "forwards to", Directed: true},
		{From: "n1", To: "n3", Label: "forwards to", Directed: true},
	}

	m, err := BuildModel(entities, edges, diagram.Infrastructure, "")
	require.NoError(t, err)

	assert.Equal(t, "Generated Architecture", m.Title)
	require.Len(t, m.Nodes, 2)
	assert.Equal(t, "elb", m.Nodes[0].Var)
	assert.Equal(t, "Load Balancer", m.Nodes[0].Label)
	assert.Equal(t, "n3", m.Nodes[1].EntityID)
	require.Len(t, m.Links, 1, "edges to unresolved entities are dropped")
	assert.Equal(t, "ec2", m.Links[0].To.Var)
	assert.True(t, m.HasLabels())
}

func TestBuildModelEmptyArchitecture(t *testing.T) {
	_, err := BuildModel([]extract.Entity{entity("n1", "FooCache", "")}, nil, diagram.Infrastructure, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, diagerr.ErrEmptyArchitecture))

	_, err = BuildModel(nil, nil, diagram.Infrastructure, "")
	assert.True(t, errors.Is(err, diagerr.ErrEmptyArchitecture))
}

func TestModelClusters(t *testing.T) {
	m, err := BuildModel([]extract.Entity{
		entity("n1", "servers", "EC2"),
		entity("n2", "load balancer", "ELB"),
		entity("n3", "functions", "Lambda"),
	}, nil, diagram.Infrastructure, "My Stack")
	require.NoError(t, err)
	assert.Equal(t, "My Stack", m.Title)

	clusters, loose := m.Clusters()
	require.Len(t, clusters, 1)
	assert.Equal(t, "Compute", clusters[0].Title)
	assert.Equal(t, []string{"ec2", "lambda_"}, []string{clusters[0].Nodes[0].Var, clusters[0].Nodes[1].Var})
	require.Len(t, loose, 1)
	assert.Equal(t, "elb", loose[0].Var)
}

func TestGenerator(t *testing.T) {
	g := NewGenerator()
	g.RegisterTemplates(listTemplate{typ: diagram.Flowchart}, failingTemplate{})
	assert.Equal(t, []diagram.Type{diagram.Flowchart, diagram.Class}, g.Types())

	entities := []extract.Entity{entity("n1", "api", "ELB"), entity("n2", "db", "RDS")}
	edges := []relate.Edge{{From: "n1", To: "n2", Label: "queries", Directed: true}}

	t.Run("renders through the registered template", func(t *testing.T) {
		out, err := g.Generate(entities, edges, diagram.Flowchart, "")
		require.NoError(t, err)
		assert.Equal(t, "mermaid\nelb=ELB:Api\nrds=RDS:Db\nelb>rds:queries\n", out.SourceCode)
		assert.Equal(t, diagram.Mermaid, out.Format)
		assert.Equal(t, 2, out.Nodes)
		assert.Equal(t, 1, out.Links)
		assert.Equal(t, "Process Flow", out.Title)
	})

	t.Run("unsupported type is checked before the architecture", func(t *testing.T) {
		_, err := g.Generate(nil, nil, diagram.Sequence, "")
		assert.True(t, errors.Is(err, diagerr.ErrUnsupportedDiagramType))
	})

	t.Run("empty architecture", func(t *testing.T) {
		_, err := g.Generate([]extract.Entity{entity("n1", "FooCache", "")}, nil, diagram.Flowchart, "")
		assert.True(t, errors.Is(err, diagerr.ErrEmptyArchitecture))
	})

	t.Run("template failure is wrapped", func(t *testing.T) {
		_, err := g.Generate(entities, edges, diagram.Class, "")
		assert.ErrorContains(t, err, "failed to render class diagram: boom")
	})
}

func TestGeneratorFormats(t *testing.T) {
	g := NewGenerator()
	g.RegisterTemplates(
		listTemplate{typ: diagram.Sequence, format: diagram.PlantUML},
		listTemplate{typ: diagram.Sequence},
		listTemplate{typ: diagram.Infrastructure, format: diagram.PlantUML},
	)
	entities := []extract.Entity{entity("n1", "api", "ELB"), entity("n2", "db", "RDS")}

	assert.Equal(t, []diagram.Format{diagram.Mermaid, diagram.PlantUML}, g.Formats(diagram.Sequence))
	assert.Equal(t, diagram.PlantUML, g.DefaultFormat(diagram.Infrastructure), "falls back to the only template")

	t.Run("default format", func(t *testing.T) {
		out, err := g.Generate(entities, nil, diagram.Sequence, "")
		require.NoError(t, err)
		assert.Equal(t, diagram.Mermaid, out.Format)
		assert.True(t, strings.HasPrefix(out.SourceCode, "mermaid\n"))
	})

	t.Run("requested format", func(t *testing.T) {
		out, err := g.GenerateAs(entities, nil, diagram.Sequence, diagram.PlantUML, "")
		require.NoError(t, err)
		assert.Equal(t, diagram.PlantUML, out.Format)
		assert.True(t, strings.HasPrefix(out.SourceCode, "plantuml\n"))
	})

	t.Run("format the type lacks", func(t *testing.T) {
		_, err := g.GenerateAs(entities, nil, diagram.Sequence, diagram.PythonDiagrams, "")
		assert.True(t, errors.Is(err, diagerr.ErrUnsupportedFormat))
		assert.ErrorContains(t, err, "supported: mermaid, plantuml")
		assert.NoError(t, g.CheckFormat(diagram.Sequence, ""))
	})

	t.Run("format is checked before the architecture", func(t *testing.T) {
		_, err := g.GenerateAs(nil, nil, diagram.Sequence, diagram.PythonDiagrams, "")
		assert.True(t, errors.Is(err, diagerr.ErrUnsupportedFormat))
	})
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"ELB":             "elb",
		"EC2":             "ec2",
		"ElastiCache":     "elasti_cache",
		"APIGateway":      "api_gateway",
		"SQLDatabases":    "sql_databases",
		"Lambda":          "lambda",
		"Cloud-Run":       "cloud_run",
		"KubernetesSvc2x": "kubernetes_svc2x",
	}
	for in, want := range tests {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}

func TestNamer(t *testing.T) {
	n := newNamer()
	assert.Equal(t, "sql", n.next("SQL"))
	assert.Equal(t, "sql_2", n.next("SQL"))
	assert.Equal(t, "lambda_", n.next("Lambda"))
	assert.Equal(t, "n_3scale", n.next("3Scale"))
	assert.Equal(t, "end_", n.next("End"))
	assert.Equal(t, "node", n.next("--"))
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Load Balancer", DisplayLabel("load  balancer"))
	assert.Equal(t, "API Gateway", DisplayLabel("API Gateway"))
	assert.Equal(t, "FooCache", DisplayLabel("FooCache"))

	assert.Equal(t, "Database", CategoryTitle("database"))
	assert.Equal(t, "ML", CategoryTitle("ml"))
	assert.Equal(t, "Big Data", CategoryTitle("big_data"))

	assert.Equal(t, "say 'hi' a/b", MermaidLabel("say \"hi\"\n a|b", true))
	assert.Equal(t, "a|b", MermaidLabel("a|b", false))
	assert.Equal(t, "", MermaidLabel("", true))

	assert.Equal(t, `"say \"hi\""`, PythonString("say \"hi\""))
	assert.Equal(t, `"a b"`, PythonString("a\n b"))
}

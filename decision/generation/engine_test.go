package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/decision/codegen/templates"
	"github.com/tvqphuoc01/diagram-mcp/decision/diagram"
	"github.com/tvqphuoc01/diagram-mcp/decision/matcher"
	"github.com/tvqphuoc01/diagram-mcp/decision/relate"
	diagerr "github.com/tvqphuoc01/diagram-mcp/pkg/errors"
)

const webAppDescription = "Users access a web application through a load balancer that distributes traffic to multiple servers connected to a database"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cat, _, err := catalog.LoadEmbedded(context.Background())
	require.NoError(t, err)
	return NewEngine(cat, nil).WithLogger(zerolog.Nop())
}

func TestGenerateLoadBalancedWebApp(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Generate(context.Background(), Request{
		Description: webAppDescription,
		Provider:    "aws",
		DiagramType: "infrastructure",
	})
	require.NoError(t, err)

	require.Len(t, res.Entities, 3)
	var services []string
	for _, ent := range res.Entities {
		require.True(t, ent.IsResolved())
		services = append(services, ent.Resolved.Record.Key())
	}
	assert.Equal(t, []string{"aws/elb", "aws/ec2", "aws/rds"}, services)
	assert.Equal(t, []string{"load balancer", "servers", "database"},
		[]string{res.Entities[0].RoleText, res.Entities[1].RoleText, res.Entities[2].RoleText})

	assert.Equal(t, []relate.Edge{
		{From: "n1", To: "n2", Label: "distributes traffic to", Directed: true, Inferred: relate.InferredConnective},
		{From: "n2", To: "n3", Label: "connected to", Directed: true, Inferred: relate.InferredConnective},
	}, res.Edges)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Issues)

	assert.Equal(t, diagram.PythonDiagrams, res.Format)
	assert.Contains(t, res.SourceCode, `elb >> Edge(label="distributes traffic to") >> ec2`)
	assert.Contains(t, res.SourceCode, `ec2 >> Edge(label="connected to") >> rds`)

	assert.Equal(t, Stats{EntitiesFound: 3, EntitiesResolved: 3, ConnectiveEdges: 2}, res.Stats)
	assert.Equal(t, catalog.AWS, res.Audit.Provider)
	assert.Equal(t, e.Catalog().Hash(), res.Audit.CatalogHash)
	assert.NotEqual(t, uuid.Nil, res.ID)
}

func TestGenerateWarnsAboutUnknownComponents(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Generate(context.Background(), Request{
		Description: "A load balancer forwards to servers that read from FooCache and store data in a database.",
		Provider:    "aws",
		DiagramType: "infrastructure",
	})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "FooCache")
	require.Len(t, res.Issues, 1)
	assert.True(t, errors.Is(res.Issues[0], diagerr.ErrUnresolvedEntity))

	assert.NotContains(t, res.SourceCode, "FooCache")
	assert.Contains(t, res.SourceCode, `elb >> Edge(label="forwards to") >> ec2`)
	assert.Contains(t, res.SourceCode, `ec2 >> Edge(label="stores data in") >> rds`)
	assert.Equal(t, 1, res.Stats.EntitiesUnresolved)
}

func TestGenerateDoesNotGuessInventedNames(t *testing.T) {
	e := newTestEngine(t)

	for _, name := range []string{"BarQueue", "CloudSearcher", "LogShipper", "CacheHub"} {
		t.Run(name, func(t *testing.T) {
			res, err := e.Generate(context.Background(), Request{
				Description: "A load balancer forwards to servers that read from " + name + " and store data in a database.",
				Provider:    "aws",
				DiagramType: "infrastructure",
			})
			require.NoError(t, err)

			require.Len(t, res.Warnings, 1)
			assert.Contains(t, res.Warnings[0], name)
			for _, ent := range res.Entities {
				if !ent.IsResolved() {
					continue
				}
				assert.NotEqual(t, name, ent.RoleText, "resolved to %s", ent.Resolved.Record.Key())
			}
			assert.Equal(t, 3, res.Stats.EntitiesResolved)
		})
	}
}

func TestGenerateFormats(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Generate(context.Background(), Request{
		Description: webAppDescription,
		Provider:    "aws",
		DiagramType: "sequence",
		Format:      "PlantUML",
	})
	require.NoError(t, err)
	assert.Equal(t, diagram.PlantUML, res.Format)
	assert.True(t, strings.HasPrefix(res.SourceCode, "@startuml\n"))
	assert.Contains(t, res.SourceCode, "elb -> ec2 : distributes traffic to\n")

	res, err = e.Generate(context.Background(), Request{Description: webAppDescription, Provider: "aws", DiagramType: "sequence"})
	require.NoError(t, err)
	assert.Equal(t, diagram.Mermaid, res.Format)

	_, err = e.Generate(context.Background(), Request{Description: webAppDescription, DiagramType: "network", Format: "plantuml"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diagerr.ErrUnsupportedFormat))
	assert.Contains(t, err.Error(), "python-diagrams")
}

func TestGenerateOrdersWarnings(t *testing.T) {
	cat := catalog.MustNew(
		catalog.ServiceRecord{Provider: catalog.AWS, Category: "compute", Name: "EKS", Aliases: []string{"kubernetes"}},
		catalog.ServiceRecord{Provider: catalog.AWS, Category: "compute", Name: "ECS", Aliases: []string{"container"}},
	)
	e := NewEngine(cat, nil).WithLogger(zerolog.Nop())

	res, err := e.Generate(context.Background(), Request{
		Description: "We need container orchestration. BarQueue feeds it.",
		Provider:    "aws",
		DiagramType: "flowchart",
	})
	require.NoError(t, err)

	require.Len(t, res.Issues, 2)
	assert.True(t, errors.Is(res.Issues[0], diagerr.ErrUnresolvedEntity), "unresolved come first")
	assert.True(t, errors.Is(res.Issues[1], diagerr.ErrAmbiguousMatch))
	assert.Contains(t, res.Warnings[0], "BarQueue")
	assert.Contains(t, res.Warnings[1], "aws/eks")
}

func TestGenerateErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unsupported type wins over empty description", Request{DiagramType: "gantt"}, diagerr.ErrUnsupportedDiagramType},
		{"unknown provider", Request{Description: webAppDescription, Provider: "oracle", DiagramType: "class"}, diagerr.ErrInvalidRequest},
		{"blank description is an empty architecture", Request{Description: " \n\t ", DiagramType: "class"}, diagerr.ErrEmptyArchitecture},
		{"unknown format", Request{Description: webAppDescription, DiagramType: "class", Format: "graphviz"}, diagerr.ErrUnsupportedFormat},
		{"format the type lacks", Request{Description: webAppDescription, DiagramType: "infrastructure", Format: "plantuml"}, diagerr.ErrUnsupportedFormat},
		{"unsupported type wins over format", Request{DiagramType: "gantt", Format: "graphviz"}, diagerr.ErrUnsupportedDiagramType},
		{"nothing resolves", Request{Description: "lorem ipsum dolor sit amet", DiagramType: "network"}, diagerr.ErrEmptyArchitecture},
		{"only unknown names", Request{Description: "FooCache talks to BarQueue", DiagramType: "sequence"}, diagerr.ErrEmptyArchitecture},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Generate(ctx, tt.req)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Generate(cctx, Request{Description: webAppDescription, DiagramType: "infrastructure"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGenerateRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	g := templates.NewGenerator()

	for _, typ := range diagram.AllTypes() {
		t.Run(string(typ), func(t *testing.T) {
			res, err := e.Generate(context.Background(), Request{Description: webAppDescription, Provider: "aws", DiagramType: string(typ)})
			require.NoError(t, err)

			again, err := g.Generate(res.Entities, res.Edges, res.DiagramType, "")
			require.NoError(t, err)
			assert.Equal(t, res.SourceCode, again.SourceCode)
		})
	}
}

func TestGenerateConcurrently(t *testing.T) {
	e := newTestEngine(t)
	want, err := e.Generate(context.Background(), Request{Description: webAppDescription, Provider: "aws", DiagramType: "dataflow"})
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			got, err := e.Generate(context.Background(), Request{Description: webAppDescription, Provider: "aws", DiagramType: "dataflow"})
			if err != nil {
				return err
			}
			if got.SourceCode != want.SourceCode {
				return errors.New("source differs between concurrent calls")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestSearch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("partial name", func(t *testing.T) {
		results, err := e.Search(ctx, SearchRequest{Query: "postgre", Provider: "aws"})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "RDS", results[0].Record.Name)
		for _, r := range results {
			assert.Equal(t, catalog.AWS, r.Record.Provider)
		}
	})

	t.Run("closest typo first", func(t *testing.T) {
		results, err := e.Search(ctx, SearchRequest{Query: "Cloudfrnt", Provider: "aws"})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "aws/cloudfront", results[0].Record.Key())
		assert.Equal(t, matcher.KindFuzzy, results[0].Kind)
		for _, r := range results[1:] {
			assert.Less(t, r.Score, results[0].Score)
		}
	})

	t.Run("exact name first", func(t *testing.T) {
		results, err := e.Search(ctx, SearchRequest{Query: "Lambda"})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "aws/lambda", results[0].Record.Key())
		assert.Equal(t, matcher.KindExact, results[0].Kind)
	})

	t.Run("category filter", func(t *testing.T) {
		results, err := e.Search(ctx, SearchRequest{Query: "database", Category: "Database"})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		for _, r := range results {
			assert.Equal(t, catalog.Category("database"), r.Record.Category)
		}
	})

	t.Run("limit", func(t *testing.T) {
		results, err := e.Search(ctx, SearchRequest{Query: "server", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = e.Search(ctx, SearchRequest{Query: "server", Limit: 1000})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), MaxSearchLimit)
	})

	t.Run("no match is an empty list", func(t *testing.T) {
		results, err := e.Search(ctx, SearchRequest{Query: "zzzzqqq"})
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := e.Search(ctx, SearchRequest{Query: ""})
		assert.True(t, errors.Is(err, diagerr.ErrInvalidRequest))
		_, err = e.Search(ctx, SearchRequest{Query: "db", Provider: "oracle"})
		assert.True(t, errors.Is(err, diagerr.ErrInvalidRequest))
	})
}

func TestDiagramTypes(t *testing.T) {
	e := newTestEngine(t)
	infos := e.DiagramTypes()
	require.Len(t, infos, 6)
	var names []string
	for _, i := range infos {
		names = append(names, string(i.Type))
	}
	assert.Equal(t, "infrastructure,sequence,flowchart,class,network,dataflow", strings.Join(names, ","))

	for _, i := range infos {
		require.NotEmpty(t, i.Formats, i.Type)
		assert.Equal(t, i.Format, i.Formats[0], i.Type)
	}
	assert.Equal(t, []diagram.Format{diagram.Mermaid, diagram.PlantUML}, infos[1].Formats)
	assert.Equal(t, []diagram.Format{diagram.PythonDiagrams}, infos[0].Formats)
}

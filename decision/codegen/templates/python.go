package templates

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/decision/codegen"
	"github.com/tvqphuoc01/diagram-mcp/decision/diagram"
)

// =============================================================================
// Python "diagrams" scripts
// =============================================================================

// PythonTemplate writes a script for the Python diagrams package. The
// graph-layout family of types (infrastructure, network, dataflow) share it
// and differ only in layout direction.
type PythonTemplate struct {
	diagramType diagram.Type
	direction   string
}

func NewInfrastructureTemplate() *PythonTemplate {
	return &PythonTemplate{diagramType: diagram.Infrastructure, direction: "LR"}
}

func NewNetworkTemplate() *PythonTemplate {
	return &PythonTemplate{diagramType: diagram.Network, direction: "TB"}
}

func NewDataflowTemplate() *PythonTemplate {
	return &PythonTemplate{diagramType: diagram.Dataflow, direction: "LR"}
}

func (t *PythonTemplate) DiagramType() diagram.Type { return t.diagramType }

func (t *PythonTemplate) Format() diagram.Format { return diagram.PythonDiagrams }

func (t *PythonTemplate) Render(m *codegen.Model) (string, error) {
	classes := classNames(m.Records())
	clusters, _ := m.Clusters()

	var b strings.Builder
	for _, line := range importLines(m, classes, len(clusters) > 0) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "with Diagram(%s, show=False, direction=%q):\n", codegen.PythonString(m.Title), t.direction)

	inCluster := make(map[*codegen.Node]int)
	for i, c := range clusters {
		for _, n := range c.Nodes {
			inCluster[n] = i
		}
	}
	written := make(map[int]bool)
	for _, n := range m.Nodes {
		i, ok := inCluster[n]
		if !ok {
			writeNode(&b, "    ", n, classes)
			continue
		}
		if written[i] {
			continue
		}
		written[i] = true
		fmt.Fprintf(&b, "    with Cluster(%s):\n", codegen.PythonString(clusters[i].Title))
		for _, cn := range clusters[i].Nodes {
			writeNode(&b, "        ", cn, classes)
		}
	}

	if len(m.Links) > 0 {
		b.WriteByte('\n')
	}
	for _, l := range m.Links {
		op := ">>"
		if !l.Directed {
			op = "-"
		}
		if l.Label != "" {
			fmt.Fprintf(&b, "    %s %s Edge(label=%s) %s %s\n", l.From.Var, op, codegen.PythonString(l.Label), op, l.To.Var)
		} else {
			fmt.Fprintf(&b, "    %s %s %s\n", l.From.Var, op, l.To.Var)
		}
	}
	return b.String(), nil
}

func writeNode(b *strings.Builder, indent string, n *codegen.Node, classes map[string]string) {
	fmt.Fprintf(b, "%s%s = %s(%s)\n", indent, n.Var, classes[n.Record.Key()], codegen.PythonString(n.Label))
}

// classNames picks the Python name each record is used under. Records of
// different providers that share a class name are imported under a
// provider-prefixed alias ("SQL" from gcp becomes "GcpSQL").
func classNames(records []*catalog.ServiceRecord) map[string]string {
	modules := make(map[string]map[string]bool)
	for _, r := range records {
		if modules[r.Name] == nil {
			modules[r.Name] = make(map[string]bool)
		}
		modules[r.Name][r.ImportModule()] = true
	}
	out := make(map[string]string, len(records))
	for _, r := range records {
		name := r.Name
		if len(modules[r.Name]) > 1 {
			p := string(r.Provider)
			name = strings.ToUpper(p[:1]) + p[1:] + r.Name
		}
		out[r.Key()] = name
	}
	return out
}

// importLines returns the sorted import block: only what the body uses.
func importLines(m *codegen.Model, classes map[string]string, clustered bool) []string {
	base := []string{"Diagram"}
	if clustered {
		base = append(base, "Cluster")
	}
	if m.HasLabels() {
		base = append(base, "Edge")
	}
	sort.Strings(base)

	byModule := make(map[string][]string)
	for _, r := range m.Records() {
		entry := r.Name
		if alias := classes[r.Key()]; alias != r.Name {
			entry = r.Name + " as " + alias
		}
		byModule[r.ImportModule()] = append(byModule[r.ImportModule()], entry)
	}

	lines := []string{"from diagrams import " + strings.Join(base, ", ")}
	for mod, names := range byModule {
		sort.Strings(names)
		lines = append(lines, fmt.Sprintf("from %s import %s", mod, strings.Join(names, ", ")))
	}
	sort.Strings(lines)
	return lines
}

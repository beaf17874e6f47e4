// Package templates provides the source templates for every diagram type
package templates

import "github.com/tvqphuoc01/diagram-mcp/decision/codegen"

// RegisterAllTemplates registers every template with the generator
func RegisterAllTemplates(g *codegen.Generator) {
	// Graph layout (python diagrams)
	g.RegisterTemplate(NewInfrastructureTemplate())
	g.RegisterTemplate(NewNetworkTemplate())
	g.RegisterTemplate(NewDataflowTemplate())

	// Markup (mermaid)
	g.RegisterTemplate(NewSequenceTemplate())
	g.RegisterTemplate(NewFlowchartTemplate())
	g.RegisterTemplate(NewClassTemplate())

	// Markup (plantuml)
	g.RegisterTemplate(NewPlantUMLSequenceTemplate())
	g.RegisterTemplate(NewPlantUMLClassTemplate())
}

// NewGenerator returns a generator with all templates registered.
func NewGenerator() *codegen.Generator {
	g := codegen.NewGenerator()
	RegisterAllTemplates(g)
	return g
}

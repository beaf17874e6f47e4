package codegen

import (
	"strconv"
	"strings"
)

// MermaidLabel makes label safe inside Mermaid text: double quotes become
// single quotes, line breaks become spaces and runs of whitespace collapse.
// Labels wrapped in pipes (flowchart edge labels) also lose their pipes.
func MermaidLabel(label string, pipeWrapped bool) string {
	if label == "" {
		return ""
	}
	s := strings.ReplaceAll(label, `"`, "'")
	if pipeWrapped {
		s = strings.ReplaceAll(s, "|", "/")
	}
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// PythonString returns label as a double-quoted Python string literal on
// one line.
func PythonString(label string) string {
	return strconv.Quote(strings.Join(strings.Fields(label), " "))
}

// PlantUMLLabel makes label safe inside PlantUML quoted names and message
// text: double quotes become single quotes and whitespace collapses onto
// one line.
func PlantUMLLabel(label string) string {
	s := strings.ReplaceAll(label, `"`, "'")
	return strings.Join(strings.Fields(s), " ")
}

package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/atelier-agents/codeforge/engine/typeutil"
)

// BuiltinPrompts is the default PromptRegistry, rendering each stage's prompt
// from the accumulated run context.
type BuiltinPrompts struct{}

// Get implements stage.PromptRegistry.
func (BuiltinPrompts) Get(stageID string, ctx map[string]any) (string, error) {
	builder, ok := promptBuilders[stageID]
	if !ok {
		return "", fmt.Errorf("no prompt registered for stage '%s'", stageID)
	}
	return builder(ctx), nil
}

var promptBuilders = map[string]func(map[string]any) string{
	StageRequirements:   requirementsPrompt,
	StageDesign:         designPrompt,
	StageStructure:      structurePrompt,
	StageCodeGeneration: codeGenerationPrompt,
	StageVerification:   verificationPrompt,
	StageDocumentation:  documentationPrompt,
}

func requirementsPrompt(ctx map[string]any) string {
	return fmt.Sprintf(
		"Analyze the following software development task and extract clear requirements:\n\n%s\n\n"+
			"Provide a structured list of requirements that need to be implemented and the dependencies "+
			"between them. Keep all requirements minimal: only what is essential to accomplish the task.",
		typeutil.SafeStringDefault(ctx["task"], ""))
}

func designPrompt(ctx map[string]any) string {
	var b strings.Builder
	b.WriteString("Based on these requirements:\n\n")
	writeBullets(&b, ctx["requirements"])
	b.WriteString("\nand dependencies between them:\n\n")
	writeBullets(&b, ctx["dependencies"])
	b.WriteString("\nCreate a high-level software design that favors simplicity:\n" +
		"1. Architecture overview\n" +
		"2. Main components\n" +
		"3. Data models\n" +
		"4. API endpoints (if applicable)\n" +
		"5. Dependencies and libraries needed\n")
	return b.String()
}

func structurePrompt(ctx map[string]any) string {
	var b strings.Builder
	b.WriteString("Based on this design:\n\n")
	b.WriteString("Architecture:\n" + typeutil.SafeStringDefault(ctx["architecture"], "") + "\n\n")
	b.WriteString("Components:\n")
	writeBullets(&b, ctx["components"])
	b.WriteString("\nData models:\n")
	writeBullets(&b, ctx["data_models"])
	b.WriteString("\nPropose a minimal project structure with only the essential files. " +
		"Each file must be a separate entry: code will be generated per file. " +
		"Classify every file as source, test, config, doc or asset.")
	return b.String()
}

func codeGenerationPrompt(ctx map[string]any) string {
	var b strings.Builder
	if targets, ok := typeutil.SafeStringSlice(ctx["regenerate_paths"]); ok && len(targets) > 0 {
		b.WriteString("Regenerate complete content for these files:\n")
		writeBullets(&b, targets)
		b.WriteString("\nThe previous verification found these gaps:\n")
		writeBullets(&b, ctx["missing_elements"])
		if log, ok := typeutil.SafeString(ctx["execution_log"]); ok && log != "" {
			b.WriteString("\nExecution log:\n" + log + "\n")
		}
		b.WriteString("\nCurrent file contents:\n")
		writeFiles(&b, ctx["generated_files"])
	} else {
		b.WriteString("Generate complete content for every file of the project.\n")
	}
	b.WriteString("\nRequirements:\n")
	writeBullets(&b, ctx["requirements"])
	b.WriteString("\nDesign:\n" + typeutil.SafeStringDefault(ctx["architecture"], "") + "\n")
	b.WriteString("\nProject structure:\n")
	writeBullets(&b, ctx["manifest"])
	b.WriteString("\nProvide properly formatted, complete code with all necessary imports. " +
		"Return full file contents, never fragments.")
	return b.String()
}

func verificationPrompt(ctx map[string]any) string {
	var b strings.Builder
	b.WriteString("Verify the completeness of this project against its requirements.\n\n")
	b.WriteString("Requirements:\n")
	writeBullets(&b, ctx["requirements"])
	b.WriteString("\nProject files:\n")
	writeFiles(&b, ctx["generated_files"])
	if log, ok := typeutil.SafeString(ctx["execution_log"]); ok && log != "" {
		b.WriteString("\nExecution log:\n" + log + "\n")
	}
	b.WriteString("\nAnalyze imports, dependencies, function implementations, error handling " +
		"and whether every requirement is covered. Report each gap with the file it belongs to.")
	return b.String()
}

func documentationPrompt(ctx map[string]any) string {
	var b strings.Builder
	b.WriteString("Create documentation for this software project.\n\n")
	b.WriteString("Requirements:\n")
	writeBullets(&b, ctx["requirements"])
	b.WriteString("\nDesign:\n" + typeutil.SafeStringDefault(ctx["architecture"], "") + "\n")
	b.WriteString("\nFiles:\n")
	writeBullets(&b, ctx["manifest"])
	b.WriteString("\nDescribe the project overview, installation steps, usage and the role of each file.")
	return b.String()
}

func writeBullets(b *strings.Builder, value any) {
	items, _ := typeutil.SafeStringSlice(value)
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
}

func writeFiles(b *strings.Builder, value any) {
	files, ok := typeutil.SafeStringMap(value)
	if !ok {
		return
	}
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		b.WriteString(fmt.Sprintf("File: %s\n```\n%s\n```\n", path, files[path]))
	}
}

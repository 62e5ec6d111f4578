// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package annotate

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/survey-engine/pkg/types"
)

// systemPrompt frames the completion service's role for annotation calls.
const systemPrompt = "You are a meticulous reader and classifier of molecular and chemistry AI papers."

// annotationPromptTmpl instructs the model to classify one paper onto the
// survey taxonomy and emit a single <json> block. The classification rules
// mirror the normalizer: whatever the model gets wrong here, the repair
// pass snaps back onto the tree.
var annotationPromptTmpl = template.Must(template.New("annotation").Parse(`You are building mergeable, hierarchical mindmap nodes for a survey of molecular representation and molecular LLMs.

Paper metadata (from the bibliography; do not rewrite it):
- bib_key: {{.BibKey}}
- title: {{.Title}}

Paper text (excerpt, possibly truncated):
{{.Text}}

Classify and summarize the paper against the survey outline below.
Hard requirements:
- Every paper must cover Cognition and Application.
- Representation needs at least 1 entry (summarize the representation the paper uses even when it is not a contribution).
- Cognition/Reasoning entries must list contributions (an empty list is allowed when there truly are none).

Classification rules (follow them to keep the taxonomy mergeable):
0) Representation is decided by how molecular information primarily enters the model:
   - Explicit 3D coordinates / conformers / point clouds / surfaces -> Geometric Grounding.
   - Pure text linearization (SMILES/SELFIES/IUPAC/reactions) and its tokenization or augmentation -> Linguistic Linearization. A paper whose main molecular representation is a SMILES/SELFIES/IUPAC string always goes here.
   - Molecular graphs entering the model as graphs -> Topological Perception, split strictly:
     1) Graph Serialization: only when the graph is discretized into tokens, traversal sequences, graph-to-text, or reversible symbolic encodings a sequence model can read directly. Plain SMILES strings do NOT belong here, and neither does encoding the graph into continuous vectors.
     2) Graph-Text Projectors: a graph encoder (GNN, graph transformer) produces continuous vectors that a projector or adapter injects into the LLM's text space.
     3) Graph-Injected Architectures: the architecture itself is modified to process graphs natively (edge-aware attention, relational bias, message passing inside the LM).
   - Within Geometric Grounding, split strictly:
     1) Coordinate: only when the main model consumes raw 3D coordinates directly (tokenized XYZ, coordinates as embeddings), with no external geometric encoder.
     2) Geometric Encoders and Fusion: an external 3D encoder (SchNet, DimeNet, equivariant GNN, PointNet) extracts geometric features that are then fused or projected into the main model. Any external 3D encoder puts the paper here, never under Coordinate.
     3) Point Cloud and Surface Alignment: surface- or field-level 3D representations (surface meshes, voxels, electron density, electrostatic potential, surface point clouds).
   When the paper uses both 2D and 3D, include at least one Geometric Grounding -> Coordinate entry.
1) First decide whether the paper trains (updates model parameters). If it is entirely training-free (prompting, in-context learning, RAG, tools, search, agents):
   - Cognition must NOT contain any Internalization entry.
   - Cognition MUST contain at least one Externalization entry.
2) If the paper trains (pretraining, SFT, instruction tuning, RL):
   - Cognition MUST contain at least one Internalization entry.
   - Add Externalization only for inference-time interfacing (RAG/KB, tool calling, agentic orchestration, real experimental feedback loops); omit it otherwise.
3) Internalization subsubsections, strictly by definition:
   - Imbibing Chemical Syntax and Semantics: pretraining or plain SFT (supervised, multi-task, distillation) that learns chemical syntax and semantics. Not instruction data or preference alignment.
   - Aligning Capabilities with Expert Intent: instruction tuning or preference alignment (DPO/CPO/KTO/RLHF-style).
   - Aligning Generative Behavior with Physical Objectives: reinforcement learning or reward optimization (PPO, REINFORCE) directly optimizing physical or chemical objectives (docking score, property rewards, synthesizability rewards).
4) A paper with both instruction tuning and RL gets two Internalization entries, one per stage.
5) Task-specific supervised fine-tuning, regression, classification, or translation is still Imbibing; only explicit instruction-format data or preference alignment goes to Aligning Capabilities.

## Taxonomy (taxonomy fields must reuse these strings verbatim)

### Representation: {{.RepSection}}
Subsection -> Subsubsection:
{{.RepTax}}

### Cognition: {{.CogSection}}
Subsection -> Subsubsection:
{{.CogTax}}

### Application: {{.AppSection}}
Task (choose one or more):
{{.AppTasks}}

## Output format (emit ONLY the JSON, wrapped in <json>...</json>, with no explanation around it)

<json>
{
  "paper": {
    "bib_key": "{{.BibKey}}",
    "title": "{{.Title}}",
    "method_name": "the method or framework name if the paper has one, otherwise an empty string"
  },
  "representation": [
    {
      "subsection": "one of the three Representation subsections",
      "subsubsection": "one subsubsection of that subsection (a string, not a list; add another object for additional categories)",
      "summary": "one sentence on the paper's representation or alignment approach",
      "details": ["2-4 concrete details"],
      "contributions": ["0-3 contribution points (empty list when not a contribution)"]
    }
  ],
  "cognition": [
    {
      "subsection": "one of the three Cognition subsections (add another object for additional categories)",
      "subsubsection": "the matching subsubsection (a string)",
      "summary": "one sentence on the knowledge acquisition, alignment, or reasoning mechanism",
      "details": ["2-4 concrete details"],
      "contributions": ["0-3 contribution points (empty list when none)"],
      "training_data": "training data used (write 'unspecified' when unclear; for training-free papers, the base model or corpus used)",
      "objective_or_loss": "training objective or loss, summarized ('unspecified' when unclear)",
      "signals_or_tools": "external signals, tools, or feedback ('none' when absent)"
    }
  ],
  "application": [
    {
      "task": "must be one of the four Application tasks",
      "summary": "one sentence on the task setup and goal",
      "datasets": ["dataset names ('unspecified' when not given)"],
      "metrics_or_results": ["metrics or results (trends are fine when no numbers are given)"],
      "scientific_findings": ["scientific findings or insights (empty list when none)"]
    }
  ]
}
</json>

Constraints:
1) Taxonomy fields must reuse the given strings verbatim, or the nodes cannot be merged.
2) Never invent precise numbers; write "unspecified" when the paper does not state them.
3) At least 1 representation entry, 1 cognition entry, and 1 application entry.
4) Entirely training-free -> cognition may only contain Externalization and Reasoning entries.
5) Trains -> cognition must contain Internalization; Externalization only when RAG, tools, or experimental loops are actually used at inference time.
6) Internalization strictly by definition: pretraining/SFT -> Imbibing; instruction tuning or preference alignment -> Aligning Capabilities; RL or reward optimization -> Aligning Generative Behavior.
`))

type promptData struct {
	BibKey     string
	Title      string
	Text       string
	RepSection string
	CogSection string
	AppSection string
	RepTax     string
	CogTax     string
	AppTasks   string
}

// BuildPrompt renders the annotation prompt for one paper.
func BuildPrompt(bibKey, title, paperText string) (string, error) {
	var buf bytes.Buffer
	err := annotationPromptTmpl.Execute(&buf, promptData{
		BibKey:     bibKey,
		Title:      title,
		Text:       paperText,
		RepSection: types.SectionRepresentation,
		CogSection: types.SectionCognition,
		AppSection: types.SectionApplication,
		RepTax:     taxonomyLines(types.RepSubsectionOrder, types.RepSubsections),
		CogTax:     taxonomyLines(types.CogSubsectionOrder, types.CogSubsections),
		AppTasks:   quotedList(types.AppTasks),
	})
	if err != nil {
		return "", fmt.Errorf("rendering annotation prompt: %w", err)
	}
	return buf.String(), nil
}

func taxonomyLines(order []string, tree map[string][]string) string {
	var lines []string
	for _, sub := range order {
		lines = append(lines, fmt.Sprintf("- %q: [%s]", sub, strings.Join(quoted(tree[sub]), ", ")))
	}
	return strings.Join(lines, "\n")
}

func quotedList(items []string) string {
	return "[" + strings.Join(quoted(items), ", ") + "]"
}

func quoted(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

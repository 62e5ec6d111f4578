// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// The survey taxonomy is a fixed three-level hierarchy. Representation and
// Cognition break down as Section -> Subsection -> Subsubsection; Application
// is a flat Section -> Task list. The tree is static configuration: every
// annotation entry must name a member of it, and entries that cannot be
// repaired onto it carry the Unspecified sentinel instead.

const (
	SectionRepresentation = "Representation: Aligning Modalities with Chemical Nature"
	SectionCognition      = "Cognition: Mechanisms of Knowledge Acquisition and Reasoning"
	SectionApplication    = "Application: A Hierarchical Taxonomy of Chemical Tasks"
)

// Unspecified is the sentinel recorded when a taxonomy field cannot be
// resolved to a tree member, and the default for optional free-text fields
// the service left out.
const Unspecified = "unspecified"

// NoSignals is the default for a Cognition entry's signals_or_tools field.
const NoSignals = "none"

// Cognition subsection names, referenced by the normalization rules.
const (
	SubInternalization = "Internalization: Cultivating Parametric Chemical Intuition"
	SubExternalization = "Externalization: Anchoring to Physical Reality via Interfacing"
	SubReasoning       = "Reasoning: Cognitive Frameworks for Chemical Logic"
)

// Internalization stages.
const (
	StageImbibing           = "Imbibing Chemical Syntax and Semantics"
	StageExpertIntent       = "Aligning Capabilities with Expert Intent"
	StagePhysicalObjectives = "Aligning Generative Behavior with Physical Objectives"
)

// Externalization subsubsections.
const (
	ExtKnowledgeAugmentation = `Knowledge Augmentation: Querying the "Static World"`
	ExtToolOrchestration     = `Tool Orchestration: Leveraging the "Calculable World"`
	ExtEmpiricalFeedback     = `Empirical Feedback: interacting with the "Physical World"`
)

// RepSubsectionOrder preserves the outline order for rendering.
var RepSubsectionOrder = []string{
	"Linguistic Linearization: The Grammar of Chemistry",
	"Topological Perception: Incorporating Structural Bias",
	"Geometric Grounding: Encoding Physical Reality",
}

// RepSubsections maps each Representation subsection to its subsubsections.
var RepSubsections = map[string][]string{
	"Linguistic Linearization: The Grammar of Chemistry": {
		"Adaptive Tokenization Granularity",
		"Syntax-Robust Linearization",
		"Augmentation-Driven Semantic Alignment",
	},
	"Topological Perception: Incorporating Structural Bias": {
		"Graph Serialization",
		"Graph-Text Projectors",
		"Graph-Injected Architectures",
	},
	"Geometric Grounding: Encoding Physical Reality": {
		"Coordinate",
		"Geometric Encoders and Fusion",
		"Point Cloud and Surface Alignment",
	},
}

// CogSubsectionOrder preserves the outline order for rendering.
var CogSubsectionOrder = []string{
	SubInternalization,
	SubExternalization,
	SubReasoning,
}

// CogSubsections maps each Cognition subsection to its subsubsections.
var CogSubsections = map[string][]string{
	SubInternalization: {
		StageImbibing,
		StageExpertIntent,
		StagePhysicalObjectives,
	},
	SubExternalization: {
		ExtKnowledgeAugmentation,
		ExtToolOrchestration,
		ExtEmpiricalFeedback,
	},
	SubReasoning: {
		"Inferring Patterns via Contextual Analogy",
		"Deciphering Causality via Sequential Deduction",
		"Traversing Combinatorial Spaces via Strategic Planning",
		"Enforcing Validity via Introspective Refinement",
	},
}

// CogSubsubToSubsection is the reverse mapping used to repair entries where
// the service named a valid subsubsection under the wrong subsection.
var CogSubsubToSubsection = map[string]string{}

func init() {
	for sub, subsubs := range CogSubsections {
		for _, ss := range subsubs {
			CogSubsubToSubsection[ss] = sub
		}
	}
}

// AppTasks is the flat Application task list.
var AppTasks = []string{
	"Bridging Modal Gaps via Semantic Translation",
	"Deciphering Hidden Properties via Discriminative Inference",
	"Sculpting Novel Structures under Functional Constraints",
	"Orchestrating Causal Pathways for Autonomous Discovery",
}

// DefaultAppTask is assigned when an Application entry's task cannot be
// matched onto AppTasks.
const DefaultAppTask = "Deciphering Hidden Properties via Discriminative Inference"

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package annotate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/survey-engine/internal/match"
	"github.com/pdiddy/survey-engine/pkg/types"
)

// ValidationError marks a structurally complete but invalid record, such as
// a missing category in strict mode. Retried: a fresh completion usually
// fills the gap.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validating model output: " + e.Msg }

// Retryable reports true.
func (e *ValidationError) Retryable() bool { return true }

// Normalize repairs a decoded record in place onto the taxonomy. It is
// idempotent: running it on its own output changes nothing. In strict mode
// every category must end up non-empty; the repair pass runs non-strict so
// historical records are never rejected.
func Normalize(rec *types.CanonicalRecord, bibKey, title string, strict bool, th types.Thresholds) error {
	// Identity comes from the bibliography matcher, never from the model.
	rec.Paper.BibKey = bibKey
	rec.Paper.Title = title

	for i := range rec.Representation {
		normalizeRepresentation(&rec.Representation[i], th)
	}
	for i := range rec.Cognition {
		normalizeCognition(&rec.Cognition[i], th)
	}
	for i := range rec.Cognition {
		reclassifyCognition(&rec.Cognition[i])
	}
	for i := range rec.Application {
		normalizeApplication(&rec.Application[i], th)
	}

	if strict {
		switch {
		case len(rec.Representation) == 0:
			return &ValidationError{Msg: "missing representation entries"}
		case len(rec.Cognition) == 0:
			return &ValidationError{Msg: "missing cognition entries"}
		case len(rec.Application) == 0:
			return &ValidationError{Msg: "missing application entries"}
		}
	}
	return nil
}

func normalizeRepresentation(e *types.RepresentationEntry, th types.Thresholds) {
	if e.Details == nil {
		e.Details = []string{}
	}
	if e.Contributions == nil {
		e.Contributions = []string{}
	}
	e.Subsection = snapSubsection(e.Subsection, types.RepSubsectionOrder)
	e.Subsubsection = snapSubsubsection(e.Subsubsection, types.RepSubsections[e.Subsection], th)
}

func normalizeCognition(e *types.CognitionEntry, th types.Thresholds) {
	if e.Details == nil {
		e.Details = []string{}
	}
	if e.Contributions == nil {
		e.Contributions = []string{}
	}
	if e.TrainingData == "" {
		e.TrainingData = types.Unspecified
	}
	if e.ObjectiveOrLoss == "" {
		e.ObjectiveOrLoss = types.Unspecified
	}
	if e.SignalsOrTools == "" {
		e.SignalsOrTools = types.NoSignals
	}

	sub := strings.TrimSpace(e.Subsection)
	if _, ok := types.CogSubsections[sub]; !ok {
		if best, _ := match.ClosestChoice(sub, types.CogSubsectionOrder); best != "" {
			sub = best
		}
	}
	// A valid subsubsection under a missing subsection names its parent.
	if _, ok := types.CogSubsections[sub]; !ok {
		if parent, ok := types.CogSubsubToSubsection[strings.TrimSpace(e.Subsubsection)]; ok {
			sub = parent
		}
	}
	e.Subsection = sub

	allowed := types.CogSubsections[sub]
	subsub := strings.TrimSpace(e.Subsubsection)
	switch {
	case subsub == "":
		e.Subsubsection = types.Unspecified
	case contains(allowed, subsub):
		e.Subsubsection = subsub
	default:
		if best, score := match.ClosestChoice(subsub, allowed); best != "" && score >= th.TaxonFallback {
			e.Subsubsection = best
			return
		}
		// Exact member of a sibling subsection: follow it there.
		if parent, ok := types.CogSubsubToSubsection[subsub]; ok && parent != sub {
			e.Subsection = parent
			e.Subsubsection = subsub
			return
		}
		e.Subsubsection = types.Unspecified
	}
}

func normalizeApplication(e *types.ApplicationEntry, th types.Thresholds) {
	if e.Datasets == nil {
		e.Datasets = []string{}
	}
	if e.MetricsOrResults == nil {
		e.MetricsOrResults = []string{}
	}
	if e.ScientificFindings == nil {
		e.ScientificFindings = []string{}
	}
	task := strings.TrimSpace(e.Task)
	if contains(types.AppTasks, task) {
		e.Task = task
		return
	}
	if best, score := match.ClosestChoice(task, types.AppTasks); best != "" && score >= th.TaxonFallback {
		e.Task = best
		return
	}
	e.Task = types.DefaultAppTask
}

// snapSubsection snaps onto the nearest subsection unconditionally: a
// subsection is always one of three long strings, so the nearest choice is
// reliable even at low scores.
func snapSubsection(sub string, order []string) string {
	sub = strings.TrimSpace(sub)
	if contains(order, sub) {
		return sub
	}
	if best, _ := match.ClosestChoice(sub, order); best != "" {
		return best
	}
	return sub
}

// snapSubsubsection snaps onto the nearest allowed subsubsection, falling
// back to the unspecified sentinel below the repair threshold.
func snapSubsubsection(subsub string, allowed []string, th types.Thresholds) string {
	subsub = strings.TrimSpace(subsub)
	if subsub == "" {
		return types.Unspecified
	}
	if contains(allowed, subsub) {
		return subsub
	}
	if best, score := match.ClosestChoice(subsub, allowed); best != "" && score >= th.TaxonFallback {
		return best
	}
	return types.Unspecified
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// reclassifyCognition enforces the Internalization rules from free text:
// entries with no training evidence move to Externalization, and genuine
// Internalization entries get their stage re-derived from keyword signals.
func reclassifyCognition(e *types.CognitionEntry) {
	if e.Subsection != types.SubInternalization {
		return
	}
	text := cognitionText(e)
	if looksTrainingFree(e, text) {
		e.Subsection = types.SubExternalization
		e.Subsubsection = externalizationSubsub(text)
		return
	}
	e.Subsubsection = internalizationStage(text)
}

// cognitionText flattens the entry's free-text fields for keyword scanning.
func cognitionText(e *types.CognitionEntry) string {
	parts := []string{e.Summary, e.TrainingData, e.ObjectiveOrLoss, e.SignalsOrTools}
	parts = append(parts, e.Details...)
	parts = append(parts, e.Contributions...)
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return lowerCompact(strings.Join(kept, " "))
}

var spaceRE = regexp.MustCompile(`\s+`)

func lowerCompact(s string) string {
	return strings.ToLower(strings.TrimSpace(spaceRE.ReplaceAllString(s, " ")))
}

// containsToken matches short tokens like "dpo" or "rl" on alphanumeric word
// boundaries, so "lipophilicity" never triggers "ipo".
func containsToken(text, token string) bool {
	if token == "" {
		return false
	}
	re := regexp.MustCompile(`(^|[^a-z0-9])` + regexp.QuoteMeta(token) + `([^a-z0-9]|$)`)
	return re.MatchString(text)
}

func anySubstring(text string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func anyToken(text string, tokens []string) bool {
	for _, t := range tokens {
		if containsToken(text, t) {
			return true
		}
	}
	return false
}

var (
	rlStrongPhrases = []string{"policy gradient", "actor-critic", "actor critic", "rl fine-tuning", "rl finetuning"}
	rlStrongTokens  = []string{"ppo", "reinforce"}
	rlWeakPhrases   = []string{"reinforcement learning", "reward optimization", "policy optimization"}
	rlWeakTokens    = []string{"rl"}

	instrPhrases = []string{
		"instruction tuning", "instruction-tuning", "instruction fine-tuning",
		"instruction finetuning", "instruction following", "instruction-follow",
		"instruction data", "instruct", "preference", "human feedback",
	}
	instrTokens = []string{"rlhf", "rlaif", "dpo", "cpo", "kto", "ipo", "orpo"}

	physicalPhrases = []string{
		"docking", "vina", "autodock", "binding affinity", "affinity",
		"binding energy", "synthesiz", "drug-likeness", "bioactivity",
		"solubility", "toxicity",
	}
	physicalTokens = []string{"qed", "sa", "ic50", "ec50", "ki", "kd", "adme"}
)

// internalizationStage derives the Internalization subsubsection from the
// entry text. RL plus a physical or chemical objective means Physical
// Objectives; instruction or preference signals mean Expert Intent (RL
// without a physical target is usually RLHF-style alignment, so it lands
// there too); everything else is plain pretraining/SFT.
func internalizationStage(text string) string {
	hasRL := anySubstring(text, rlStrongPhrases) || anyToken(text, rlStrongTokens) ||
		anySubstring(text, rlWeakPhrases) || anyToken(text, rlWeakTokens)
	hasPhysical := anySubstring(text, physicalPhrases) || anyToken(text, physicalTokens)
	hasInstr := anySubstring(text, instrPhrases) || anyToken(text, instrTokens)

	if hasRL && hasPhysical {
		return types.StagePhysicalObjectives
	}
	if hasInstr || hasRL {
		return types.StageExpertIntent
	}
	return types.StageImbibing
}

var (
	retrievalPhrases = []string{"retriev", "knowledge base", "database", "pubchem", "chembl", "wikipedia", "search"}
	retrievalTokens  = []string{"rag", "kb"}
	empiricalPhrases = []string{"wet-lab", "wet lab", "robot", "closed-loop experiment", "laboratory", "experimental feedback"}
	toolPhrases      = []string{
		"tool", "agent", "agentic", "python", "rdkit", "openbabel",
		"simulation", "simulator", "docking", "gromacs", "gaussian", "orca", "namd",
	}
	toolTokens = []string{"api"}
)

// externalizationSubsub picks the Externalization subsubsection with a fixed
// priority: retrieval beats empirical beats tool, defaulting to retrieval.
func externalizationSubsub(text string) string {
	if anySubstring(text, retrievalPhrases) || anyToken(text, retrievalTokens) {
		return types.ExtKnowledgeAugmentation
	}
	if anySubstring(text, empiricalPhrases) {
		return types.ExtEmpiricalFeedback
	}
	if anySubstring(text, toolPhrases) || anyToken(text, toolTokens) {
		return types.ExtToolOrchestration
	}
	return types.ExtKnowledgeAugmentation
}

var baseModelTrainingData = map[string]bool{
	"base model":        true,
	"base model/corpus": true,
	"foundation model":  true,
	"base corpus":       true,
}

var trainingFreeHints = []string{
	"prompt", "in-context", "few-shot", "zero-shot", "training-free",
	"retriev", "tool", "agent", "workflow", "pipeline",
}

var negTrainRE = regexp.MustCompile(`(no|not|without) [a-z -]{0,20}(training|fine-?tuning|finetuning|parameter update)`)

// looksTrainingFree reports whether an Internalization entry carries no real
// training evidence: the training data is empty, a sentinel, or just a base
// model reference, the objective is unknown, and the text hints at prompting
// or interfacing.
func looksTrainingFree(e *types.CognitionEntry, text string) bool {
	td := strings.ToLower(strings.TrimSpace(e.TrainingData))
	ol := strings.ToLower(strings.TrimSpace(e.ObjectiveOrLoss))

	tdIsBase := baseModelTrainingData[td] || td == "" || td == types.Unspecified || td == types.NoSignals
	olUnknown := ol == "" || ol == types.Unspecified || ol == types.NoSignals
	hinted := anySubstring(text, trainingFreeHints) || anyToken(text, []string{"rag"}) ||
		negTrainRE.MatchString(text)
	return tdIsBase && olUnknown && hinted
}

// DeriveTitle returns the record title used when no bibliography entry was
// accepted: the filename stem with separators restored to spaces.
func DeriveTitle(stem string) string {
	title := strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return strings.TrimSpace(spaceRE.ReplaceAllString(title, " "))
}

// Fingerprint summarizes a record's taxonomy assignments, used by tests and
// batch reporting.
func Fingerprint(rec *types.CanonicalRecord) string {
	var parts []string
	for _, e := range rec.Representation {
		parts = append(parts, "rep:"+e.Subsubsection)
	}
	for _, e := range rec.Cognition {
		parts = append(parts, "cog:"+e.Subsubsection)
	}
	for _, e := range rec.Application {
		parts = append(parts, "app:"+e.Task)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, " | "))
}

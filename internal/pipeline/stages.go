package pipeline

import (
	"context"

	"dossier/internal/evidence"
	"dossier/internal/tools"
	"dossier/internal/types"
)

// DecideInput is everything the orchestrator may consider.
type DecideInput struct {
	Query string
	// Entities are the subjects named in Query, or Query itself when the
	// query could not be analyzed.
	Entities    []string
	Evidence    []evidence.Evidence
	Calls       []evidence.ToolCall
	Step        int
	StepCeiling int
	Catalog     []tools.Spec
	// Review is the most recent pivot assessment, if any.
	Review *types.Review
	// FollowUps are the refined queries still worth pursuing.
	FollowUps []string
}

// ReviewInput is what the pivot stage reviews.
type ReviewInput struct {
	Query    string
	Entities []string
	Evidence []evidence.Evidence
	Calls    []evidence.ToolCall
	// Previous is the last review, whose analysis this one updates.
	Previous *types.Review
}

// ResolveInput is what the resolver disambiguates.
type ResolveInput struct {
	Query    string
	Evidence []evidence.Evidence
}

// DraftInput is what the writer drafts from. PriorRejections holds the
// unsupported claims cited by the previous verdict when Generation > 0.
type DraftInput struct {
	Query           string
	Profiles        []types.EntityProfile
	Evidence        []evidence.Evidence
	NoData          bool
	Generation      int
	PriorRejections []string
}

// VerifyInput is what the judge checks a draft against.
type VerifyInput struct {
	Query    string
	Draft    types.Draft
	Profiles []types.EntityProfile
	Evidence []evidence.Evidence
}

// Orchestrator chooses the next retrieval action. It must not call tools.
type Orchestrator interface {
	Decide(ctx context.Context, in DecideInput) (types.Action, error)
}

// EntityAnalyzer is implemented by orchestrators that can name the
// subjects of a query before the first retrieval step.
type EntityAnalyzer interface {
	AnalyzeQuery(ctx context.Context, query string) ([]string, error)
}

// Pivot reviews gathered evidence for gaps.
type Pivot interface {
	Review(ctx context.Context, in ReviewInput) (types.Review, error)
}

// Resolver groups evidence into disambiguated profiles.
type Resolver interface {
	Resolve(ctx context.Context, in ResolveInput) ([]types.EntityProfile, error)
}

// Writer drafts the report.
type Writer interface {
	Draft(ctx context.Context, in DraftInput) (types.Draft, error)
}

// Judge approves or rejects a draft.
type Judge interface {
	Verify(ctx context.Context, in VerifyInput) (types.Verdict, error)
}

// Stages bundles one implementation of each stage.
type Stages struct {
	Orchestrator Orchestrator
	Pivot        Pivot
	Resolver     Resolver
	Writer       Writer
	Judge        Judge
}

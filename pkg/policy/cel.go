package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celProgram is a compiled boolean predicate over the evaluation context.
type celProgram interface {
	eval(ctx Context) (bool, error)
}

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

// environment exposes the Context fields as CEL variables.
func environment() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("agent_id", cel.StringType),
			cel.Variable("trust_score", cel.DoubleType),
			cel.Variable("endorsements", cel.IntType),
			cel.Variable("chain_length", cel.IntType),
			cel.Variable("scopes", cel.ListType(cel.StringType)),
			cel.Variable("issuer_ids", cel.ListType(cel.StringType)),
			cel.Variable("age_seconds", cel.DoubleType),
		)
	})
	return celEnv, celEnvErr
}

type compiledProgram struct {
	prg cel.Program
}

func compileExpression(expr string) (celProgram, error) {
	env, err := environment()
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must be boolean, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build program: %w", err)
	}
	return &compiledProgram{prg: prg}, nil
}

func (c *compiledProgram) eval(ctx Context) (bool, error) {
	scopes := ctx.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	issuers := ctx.IssuerIDs
	if issuers == nil {
		issuers = []string{}
	}
	out, _, err := c.prg.Eval(map[string]interface{}{
		"agent_id":     ctx.AgentID,
		"trust_score":  ctx.TrustScore,
		"endorsements": ctx.Endorsements,
		"chain_length": ctx.ChainLength,
		"scopes":       scopes,
		"issuer_ids":   issuers,
		"age_seconds":  ctx.AgeSeconds,
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out.Value())
	}
	return b, nil
}

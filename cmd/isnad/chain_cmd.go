package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/isnad-labs/isnad/pkg/scoring"
)

// runChain lists an agent's attestations: chain <agent> -c <chain>.
func runChain(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("chain", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	chain := cmd.String("c", "", "chain file (required)")
	jsonOut := cmd.Bool("json", false, "machine-readable output")
	if err := parsePositional(cmd, args, 1); err != nil {
		fmt.Fprintf(stderr, "chain: %v\nusage: isnad chain <agent> -c <chain>\n", err)
		return 1
	}
	agent, err := resolveAgent(cmd.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "chain: %v\n", err)
		return 1
	}
	if *chain == "" {
		fmt.Fprintln(stderr, "chain: a chain file is required (-c)")
		return 1
	}

	ctx := context.Background()
	l, err := openChain(ctx, *chain)
	if err != nil {
		fmt.Fprintf(stderr, "chain: %v\n", err)
		return 1
	}

	atts := l.BySubject(agent)
	emit(stdout, *jsonOut, map[string]interface{}{
		"agent_id":     agent,
		"count":        len(atts),
		"attestations": atts,
	}, func() {
		fmt.Fprintf(stdout, "%s: %d attestation(s)\n", agent, len(atts))
		for _, att := range atts {
			fmt.Fprintf(stdout, "  %s  %-20s  witness %s  %s\n", att.ID, att.Task, att.Witness, att.Timestamp)
		}
	})
	return 0
}

// runScore computes a trust score: score <agent> -c <chain> [-s scope].
func runScore(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("score", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	chain := cmd.String("c", "", "chain file (required)")
	scope := cmd.String("s", "", "restrict to tasks containing this scope")
	from := cmd.String("from", "", "also compute transitive trust from this agent")
	jsonOut := cmd.Bool("json", false, "machine-readable output")
	if err := parsePositional(cmd, args, 1); err != nil {
		fmt.Fprintf(stderr, "score: %v\nusage: isnad score <agent> -c <chain> [-s scope]\n", err)
		return 1
	}
	agent, err := resolveAgent(cmd.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "score: %v\n", err)
		return 1
	}
	if *chain == "" {
		fmt.Fprintln(stderr, "score: a chain file is required (-c)")
		return 1
	}

	ctx := context.Background()
	l, err := openChain(ctx, *chain)
	if err != nil {
		fmt.Fprintf(stderr, "score: %v\n", err)
		return 1
	}
	engine := scoring.NewEngine(l)

	result := map[string]interface{}{
		"agent_id":    agent,
		"scope":       *scope,
		"trust_score": engine.TrustScore(agent, *scope),
	}
	if *from != "" {
		source, err := resolveAgent(*from)
		if err != nil {
			fmt.Fprintf(stderr, "score: %v\n", err)
			return 1
		}
		result["chain_trust"] = engine.ChainTrust(source, agent, 0)
		result["source"] = source
	}

	emit(stdout, *jsonOut, result, func() {
		fmt.Fprintf(stdout, "%s: trust %.3f", agent, result["trust_score"])
		if *scope != "" {
			fmt.Fprintf(stdout, " (scope %q)", *scope)
		}
		if ct, ok := result["chain_trust"]; ok {
			fmt.Fprintf(stdout, ", chain trust %.3f from %s", ct, result["source"])
		}
		fmt.Fprintln(stdout)
	})
	return 0
}

// runStats summarizes a chain: stats -c <chain>.
func runStats(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("stats", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	chain := cmd.String("c", "", "chain file (required)")
	jsonOut := cmd.Bool("json", false, "machine-readable output")
	if err := cmd.Parse(args); err != nil {
		return 1
	}
	if *chain == "" {
		fmt.Fprintln(stderr, "stats: a chain file is required (-c)")
		return 1
	}

	ctx := context.Background()
	l, err := openChain(ctx, *chain)
	if err != nil {
		fmt.Fprintf(stderr, "stats: %v\n", err)
		return 1
	}

	stats := l.Stats()
	revocations := l.Revocations().Size()
	emit(stdout, *jsonOut, map[string]interface{}{
		"attestations": stats.Count,
		"subjects":     stats.Subjects,
		"witnesses":    stats.Witnesses,
		"revocations":  revocations,
	}, func() {
		fmt.Fprintf(stdout, "attestations: %d\nsubjects:     %d\nwitnesses:    %d\nrevocations:  %d\n",
			stats.Count, stats.Subjects, stats.Witnesses, revocations)
	})
	return 0
}

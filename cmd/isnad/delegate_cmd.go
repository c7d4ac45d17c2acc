package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/isnad-labs/isnad/pkg/record"
)

// runDelegate manages delegation grants. Currently only "create":
// delegate create <delegate> -k <keyfile> -s <scopes>.
func runDelegate(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: isnad delegate create <delegate> -k <keyfile> -s <scopes>")
		return 1
	}
	switch args[0] {
	case "create":
		return runDelegateCreate(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "delegate: unknown subcommand %q\n", args[0])
		return 1
	}
}

func runDelegateCreate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("delegate create", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	keyfile := cmd.String("k", "", "principal keyfile (required)")
	scopes := cmd.String("s", "", "comma-separated scopes (required)")
	maxDepth := cmd.Int("max-depth", 1, "how many further sub-delegations are allowed")
	expires := cmd.String("expires", "", "expiry as RFC 3339 or a duration like 24h")
	out := cmd.String("o", "", "write delegation to file instead of stdout")
	chain := cmd.String("c", "", "also record into this chain file")
	if err := parsePositional(cmd, args, 1); err != nil {
		fmt.Fprintf(stderr, "delegate: %v\nusage: isnad delegate create <delegate> -k <keyfile> -s <scopes>\n", err)
		return 1
	}
	delegate, err := resolveAgent(cmd.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "delegate: %v\n", err)
		return 1
	}

	if *scopes == "" {
		fmt.Fprintln(stderr, "delegate: at least one scope is required (-s)")
		return 1
	}
	var scopeList []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopeList = append(scopeList, s)
		}
	}

	var expiry *time.Time
	if *expires != "" {
		t, err := time.Parse(time.RFC3339, *expires)
		if err != nil {
			d, derr := time.ParseDuration(*expires)
			if derr != nil {
				fmt.Fprintf(stderr, "delegate: --expires must be RFC 3339 or a duration: %v\n", err)
				return 1
			}
			t = time.Now().UTC().Add(d)
		}
		expiry = &t
	}

	principal, err := loadKey(*keyfile)
	if err != nil {
		fmt.Fprintf(stderr, "delegate: %v\n", err)
		return 1
	}

	del, err := record.NewDelegation(principal, delegate, scopeList, expiry, *maxDepth)
	if err != nil {
		fmt.Fprintf(stderr, "delegate: %v\n", err)
		return 1
	}

	if *chain != "" {
		ctx := context.Background()
		l, err := openChain(ctx, *chain)
		if err != nil {
			fmt.Fprintf(stderr, "delegate: %v\n", err)
			return 1
		}
		if err := l.Delegations().Add(ctx, del); err != nil {
			fmt.Fprintf(stderr, "delegate: chain rejected the delegation: %v\n", err)
			return 1
		}
	}

	data, err := json.MarshalIndent(del, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "delegate: %v\n", err)
		return 1
	}
	if err := writeOutput(*out, data, stdout); err != nil {
		fmt.Fprintf(stderr, "delegate: %v\n", err)
		return 1
	}
	return 0
}

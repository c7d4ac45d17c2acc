package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/isnad-labs/isnad/pkg/record"
)

// runRevoke creates a signed revocation: revoke <id> -k <keyfile> --reason <text>.
func runRevoke(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("revoke", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	keyfile := cmd.String("k", "", "revoker keyfile (required)")
	reason := cmd.String("reason", "", "why the target is revoked (required)")
	scope := cmd.String("s", "", "scope of the revocation (empty = global)")
	out := cmd.String("o", "", "write revocation to file instead of stdout")
	chain := cmd.String("c", "", "also record into this chain file")
	if err := parsePositional(cmd, args, 1); err != nil {
		fmt.Fprintf(stderr, "revoke: %v\nusage: isnad revoke <target> -k <keyfile> --reason <text> [-s scope] [-c chain]\n", err)
		return 1
	}
	target := cmd.Arg(0)

	if *reason == "" {
		fmt.Fprintln(stderr, "revoke: a reason is required (--reason)")
		return 1
	}
	revoker, err := loadKey(*keyfile)
	if err != nil {
		fmt.Fprintf(stderr, "revoke: %v\n", err)
		return 1
	}

	rev, err := record.NewRevocation(revoker, target, *reason, *scope)
	if err != nil {
		fmt.Fprintf(stderr, "revoke: %v\n", err)
		return 1
	}

	if *chain != "" {
		ctx := context.Background()
		l, err := openChain(ctx, *chain)
		if err != nil {
			fmt.Fprintf(stderr, "revoke: %v\n", err)
			return 1
		}
		if err := l.Revoke(ctx, rev); err != nil {
			fmt.Fprintf(stderr, "revoke: chain rejected the revocation: %v\n", err)
			return 1
		}
	}

	data, err := json.MarshalIndent(rev, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "revoke: %v\n", err)
		return 1
	}
	if err := writeOutput(*out, data, stdout); err != nil {
		fmt.Fprintf(stderr, "revoke: %v\n", err)
		return 1
	}
	return 0
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/record"
)

// runKeygen generates an identity keyfile (mode 0600). With
// ISNAD_PASSPHRASE set the seed is encrypted at rest.
func runKeygen(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	out := cmd.String("o", "identity.json", "output keyfile path")
	jsonOut := cmd.Bool("json", false, "machine-readable output")
	if err := cmd.Parse(args); err != nil {
		return 1
	}

	id, err := identity.New()
	if err != nil {
		fmt.Fprintf(stderr, "keygen: %v\n", err)
		return 1
	}

	var saveErr error
	if p := passphrase(); p != nil {
		saveErr = identity.SaveEncrypted(id, *out, p)
	} else {
		saveErr = identity.Save(id, *out)
	}
	if saveErr != nil {
		fmt.Fprintf(stderr, "keygen: %v\n", saveErr)
		return 1
	}

	emit(stdout, *jsonOut, map[string]string{
		"agent_id":   id.AgentID(),
		"public_key": id.PublicKey(),
		"keyfile":    *out,
	}, func() {
		fmt.Fprintf(stdout, "agent_id: %s\nkeyfile:  %s\n", id.AgentID(), *out)
	})
	return 0
}

// runAttest creates a signed attestation: attest <subject> <task> -k <keyfile>.
func runAttest(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("attest", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	keyfile := cmd.String("k", "", "witness keyfile (required)")
	evidence := cmd.String("e", "", "evidence reference")
	out := cmd.String("o", "", "write attestation to file instead of stdout")
	chain := cmd.String("c", "", "also admit into this chain file")
	if err := parsePositional(cmd, args, 2); err != nil {
		fmt.Fprintf(stderr, "attest: %v\nusage: isnad attest <subject> <task> -k <keyfile> [-e evidence] [-o out] [-c chain]\n", err)
		return 1
	}
	subject, task := cmd.Arg(0), cmd.Arg(1)

	witness, err := loadKey(*keyfile)
	if err != nil {
		fmt.Fprintf(stderr, "attest: %v\n", err)
		return 1
	}

	att, err := record.NewAttestation(witness, subject, task, *evidence)
	if err != nil {
		fmt.Fprintf(stderr, "attest: %v\n", err)
		return 1
	}

	if *chain != "" {
		ctx := context.Background()
		l, err := openChain(ctx, *chain)
		if err != nil {
			fmt.Fprintf(stderr, "attest: %v\n", err)
			return 1
		}
		admitted, err := l.Add(ctx, att)
		if err != nil {
			fmt.Fprintf(stderr, "attest: %v\n", err)
			return 1
		}
		if !admitted {
			fmt.Fprintln(stderr, "attest: chain rejected the attestation (duplicate or revoked)")
			return 1
		}
	}

	data, err := json.MarshalIndent(att, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "attest: %v\n", err)
		return 1
	}
	if err := writeOutput(*out, data, stdout); err != nil {
		fmt.Fprintf(stderr, "attest: %v\n", err)
		return 1
	}
	return 0
}

// runVerify checks an attestation file (or stdin with "-").
func runVerify(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	jsonOut := cmd.Bool("json", false, "machine-readable output")
	if err := parsePositional(cmd, args, 1); err != nil {
		fmt.Fprintf(stderr, "verify: %v\nusage: isnad verify <file|->\n", err)
		return 1
	}

	data, err := readInput(cmd.Arg(0), os.Stdin)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}

	var att record.Attestation
	if err := json.Unmarshal(data, &att); err != nil {
		fmt.Fprintf(stderr, "verify: not an attestation document: %v\n", err)
		return 1
	}

	if err := att.Verify(); err != nil {
		emit(stdout, *jsonOut, map[string]interface{}{
			"valid":  false,
			"reason": err.Error(),
		}, func() {
			fmt.Fprintf(stdout, "INVALID: %v\n", err)
		})
		return 1
	}

	id, _ := att.ComputeID()
	emit(stdout, *jsonOut, map[string]interface{}{
		"valid":          true,
		"attestation_id": id,
		"subject":        att.Subject,
		"witness":        att.Witness,
		"task":           att.Task,
	}, func() {
		fmt.Fprintf(stdout, "VALID %s\n  subject: %s\n  witness: %s\n  task:    %s\n",
			id, att.Subject, att.Witness, att.Task)
	})
	return 0
}

// parsePositional parses flags that may appear after positional args and
// requires exactly n positionals.
func parsePositional(cmd *flag.FlagSet, args []string, n int) error {
	// Split leading positionals so "attest <subject> <task> -k key" works.
	var positional []string
	rest := args
	for len(rest) > 0 && len(positional) < n && (len(rest[0]) == 0 || rest[0][0] != '-') {
		positional = append(positional, rest[0])
		rest = rest[1:]
	}
	if err := cmd.Parse(append(rest, positional...)); err != nil {
		return err
	}
	if cmd.NArg() != n {
		return fmt.Errorf("expected %d argument(s), got %d", n, cmd.NArg())
	}
	return nil
}

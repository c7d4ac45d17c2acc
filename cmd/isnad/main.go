// Command isnad is the trust ledger CLI: create and verify attestations,
// inspect chains, score agents, revoke, and delegate.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, separated from main for testing. Exit code is 0
// on success and 1 on any failure.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 1
	}

	switch args[1] {
	case "keygen":
		return runKeygen(args[2:], stdout, stderr)
	case "attest":
		return runAttest(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "chain":
		return runChain(args[2:], stdout, stderr)
	case "score":
		return runScore(args[2:], stdout, stderr)
	case "revoke":
		return runRevoke(args[2:], stdout, stderr)
	case "delegate":
		return runDelegate(args[2:], stdout, stderr)
	case "stats":
		return runStats(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "isnad: unknown command %q\n", args[1])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "isnad — agent trust attestation ledger")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  isnad <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  keygen    Generate a new identity keyfile")
	fmt.Fprintln(w, "  attest    Create a signed attestation (attest <subject> <task> -k <keyfile>)")
	fmt.Fprintln(w, "  verify    Verify an attestation file (verify <file|->)")
	fmt.Fprintln(w, "  chain     List an agent's attestations (chain <agent> -c <chain>)")
	fmt.Fprintln(w, "  score     Compute an agent's trust score (score <agent> -c <chain> [-s scope])")
	fmt.Fprintln(w, "  revoke    Create a signed revocation (revoke <id> -k <keyfile> --reason <text>)")
	fmt.Fprintln(w, "  delegate  Manage delegations (delegate create <delegate> -k <keyfile> -s <scope>)")
	fmt.Fprintln(w, "  stats     Show chain statistics (stats -c <chain>)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Most commands accept --json for machine-readable output.")
}

// passphrase returns the keyfile passphrase from the environment, or nil
// for plaintext keyfiles.
func passphrase() []byte {
	if p := os.Getenv("ISNAD_PASSPHRASE"); p != "" {
		return []byte(p)
	}
	return nil
}

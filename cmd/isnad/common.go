package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/ledger"
	"github.com/isnad-labs/isnad/pkg/store"
)

// openChain opens (or creates) a JSONL-backed ledger at path.
func openChain(ctx context.Context, path string) (*ledger.Ledger, error) {
	backend, err := store.NewJSONLBackend(path)
	if err != nil {
		return nil, err
	}
	return ledger.Open(ctx, backend)
}

// loadKey reads an identity keyfile, decrypting with ISNAD_PASSPHRASE
// when needed.
func loadKey(path string) (*identity.Identity, error) {
	if path == "" {
		return nil, fmt.Errorf("a keyfile is required (-k)")
	}
	return identity.Load(path, passphrase())
}

// readInput reads a file argument, with "-" meaning stdin.
func readInput(arg string, stdin io.Reader) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(arg)
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "" {
		_, err := fmt.Fprintln(stdout, string(data))
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// emit prints v as indented JSON when jsonOut is set, otherwise calls
// human for the plain rendering.
func emit(w io.Writer, jsonOut bool, v interface{}, human func()) {
	if jsonOut {
		data, _ := json.MarshalIndent(v, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	human()
}

var pubkeyRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// resolveAgent accepts either an agent id or a hex public key.
func resolveAgent(s string) (string, error) {
	if identity.IsAgentID(s) {
		return s, nil
	}
	if pubkeyRe.MatchString(s) {
		return identity.DeriveAgentID(s), nil
	}
	return "", fmt.Errorf("%q is neither an agent id nor a hex public key", s)
}

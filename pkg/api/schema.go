package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// maxBodyBytes bounds every request body read.
const maxBodyBytes = 1 << 20 // 1MB

// Request schemas, compiled once at package init. Validation catches
// shape errors before signature verification runs.
var (
	attestationSchema = jsonschema.MustCompileString("attestation.json", `{
		"type": "object",
		"required": ["subject", "witness", "task", "timestamp", "signature", "witness_pubkey"],
		"properties": {
			"subject":        {"type": "string", "pattern": "^agent:[0-9a-f]{16}$"},
			"witness":        {"type": "string", "pattern": "^agent:[0-9a-f]{16}$"},
			"task":           {"type": "string", "minLength": 1},
			"evidence":       {"type": "string"},
			"timestamp":      {"type": "string"},
			"attestation_id": {"type": "string"},
			"signature":      {"type": "string", "pattern": "^[0-9a-f]{128}$"},
			"witness_pubkey": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
		}
	}`)

	revocationSchema = jsonschema.MustCompileString("revocation.json", `{
		"type": "object",
		"required": ["target_id", "revoked_by", "timestamp", "signature", "revoker_pubkey"],
		"properties": {
			"target_id":      {"type": "string", "minLength": 1},
			"reason":         {"type": "string"},
			"revoked_by":     {"type": "string", "pattern": "^agent:[0-9a-f]{16}$"},
			"scope":          {"type": ["string", "null"]},
			"timestamp":      {"type": "string"},
			"signature":      {"type": "string", "pattern": "^[0-9a-f]{128}$"},
			"revoker_pubkey": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
		}
	}`)

	delegationSchema = jsonschema.MustCompileString("delegation.json", `{
		"type": "object",
		"required": ["principal", "delegate", "scopes", "max_depth", "depth", "timestamp", "delegation_id", "signature", "principal_pubkey"],
		"properties": {
			"principal":        {"type": "string", "pattern": "^agent:[0-9a-f]{16}$"},
			"delegate":         {"type": "string", "pattern": "^agent:[0-9a-f]{16}$"},
			"scopes":           {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"expires_at":       {"type": ["string", "null"]},
			"max_depth":        {"type": "integer", "minimum": 0},
			"parent_id":        {"type": ["string", "null"]},
			"depth":            {"type": "integer", "minimum": 0},
			"timestamp":        {"type": "string"},
			"delegation_id":    {"type": "string"},
			"signature":        {"type": "string", "pattern": "^[0-9a-f]{128}$"},
			"principal_pubkey": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
		}
	}`)

	profileSchema = jsonschema.MustCompileString("profile.json", `{
		"type": "object",
		"required": ["agent_id", "name"],
		"properties": {
			"agent_id":      {"type": "string", "pattern": "^agent:[0-9a-f]{16}$"},
			"name":          {"type": "string", "minLength": 1},
			"description":   {"type": "string"},
			"capabilities":  {"type": "array", "items": {"type": "string"}},
			"platform_urls": {"type": "array", "items": {"type": "string", "format": "uri"}}
		}
	}`)
)

// decodeValidated reads the request body, checks it against schema, and
// unmarshals it into v. Schema violations surface as one readable error.
func decodeValidated(r *http.Request, w http.ResponseWriter, schema *jsonschema.Schema, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// decodeJSON reads and unmarshals the request body without schema checks,
// for endpoints whose shape is a thin wrapper around internal types.
func decodeJSON(r *http.Request, w http.ResponseWriter, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

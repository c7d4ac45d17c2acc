// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// compliant serialization. Canonical JSON is the only form that is ever
// signed or hashed: sorted keys, no insignificant whitespace, UTF-8,
// no HTML escaping.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshalled with encoding/json (so struct tags are honored),
// then transformed into canonical form. Values that have no JSON
// representation (NaN, Inf, channels, funcs) are rejected.
func JCS(v interface{}) ([]byte, error) {
	if err := rejectNonJSON(reflect.ValueOf(v)); err != nil {
		return nil, err
	}

	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}

	canonical, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// JCSString returns the canonical form as a string.
func JCSString(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CanonicalHash returns the full SHA-256 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// ContentID returns the first 16 hex characters of the SHA-256 digest of
// the canonical form of v. This is the identifier scheme shared by
// attestations, delegations, and agent identities.
func ContentID(v interface{}) (string, error) {
	h, err := CanonicalHash(v)
	if err != nil {
		return "", err
	}
	return h[:16], nil
}

// HashBytes computes the SHA-256 hash of raw bytes as a hex string.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 16 hex characters of sha256(data).
func ShortHash(data []byte) string {
	return HashBytes(data)[:16]
}

// rejectNonJSON walks v looking for float NaN/Inf, which encoding/json
// would reject with a late, less useful error.
func rejectNonJSON(rv reflect.Value) error {
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("jcs: value %v has no JSON representation", f)
		}
	case reflect.Ptr, reflect.Interface:
		if !rv.IsNil() {
			return rejectNonJSON(rv.Elem())
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := rejectNonJSON(rv.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if err := rejectNonJSON(iter.Value()); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if rv.Type().Field(i).IsExported() {
				if err := rejectNonJSON(rv.Field(i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

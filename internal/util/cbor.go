/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package util

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
)

// DescribeCOSE renders a COSE_Sign1 envelope as indented JSON for operators.
// The protected header and the payload are decoded in place; byte strings
// that are not CBOR are shown in diagnostic notation h'..'.
func DescribeCOSE(envelope []byte) (string, error) {
	var tag cbor.Tag
	if err := cbor.Unmarshal(envelope, &tag); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	parts, ok := tag.Content.([]any)
	if !ok || len(parts) != 4 {
		return "", fmt.Errorf("tag %d does not hold a COSE_Sign1 array", tag.Number)
	}

	out := map[string]any{"_cborTag": tag.Number}
	names := []string{"protected", "unprotected", "payload", "signature"}
	for i, name := range names {
		v := parts[i]
		if name == "protected" || name == "payload" {
			v = decodeNested(v)
		}
		norm, err := normaliseCBOR(v)
		if err != nil {
			return "", err
		}
		out[name] = norm
	}

	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}

func decodeNested(v any) any {
	b, ok := v.([]byte)
	if !ok || len(b) == 0 {
		return v
	}
	var inner any
	if err := cbor.Unmarshal(b, &inner); err != nil {
		return v
	}
	return inner
}

func normaliseCBOR(value any) (any, error) {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			norm, err := normaliseCBOR(elem)
			if err != nil {
				return nil, err
			}
			out[i] = norm
		}
		return out, nil
	case map[any]any:
		keys := make([]string, 0, len(v))
		vals := make(map[string]any, len(v))
		for key, val := range v {
			norm, err := normaliseCBOR(val)
			if err != nil {
				return nil, err
			}
			k := stringifyKey(key)
			keys = append(keys, k)
			vals[k] = norm
		}
		sort.Strings(keys)
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			out[k] = vals[k]
		}
		return out, nil
	case []byte:
		return fmt.Sprintf("h'%x'", v), nil
	case cbor.Tag:
		content, err := normaliseCBOR(v.Content)
		if err != nil {
			return nil, err
		}
		return map[string]any{"_cborTag": v.Number, "content": content}, nil
	default:
		return v, nil
	}
}

func stringifyKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case []byte:
		return fmt.Sprintf("h'%x'", k)
	default:
		return fmt.Sprint(k)
	}
}

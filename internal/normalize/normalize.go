// Package normalize flattens the heterogeneous response shapes returned by
// the wallet backend and the number provider into single values. The upstream
// APIs are inconsistent (some endpoints report success via "success", others
// via "status"; balances appear under several keys, sometimes nested), so all
// shape knowledge is concentrated here instead of being spread through callers.
package normalize

import (
	"strconv"
	"strings"
)

// nestKeys are checked in this order when the balance is not at the top level.
var nestKeys = []string{"data", "result", "wallet"}

// ExtractBalance looks for a balance figure under "balance" or "saldo",
// first at the top level and then nested one level under data, result or
// wallet, in that priority order.
func ExtractBalance(v interface{}) (int64, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return 0, false
	}
	if n, ok := numberField(m, "balance", "saldo"); ok {
		return n, true
	}
	for _, nest := range nestKeys {
		if inner, ok := m[nest].(map[string]interface{}); ok {
			if n, ok := numberField(inner, "balance", "saldo"); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// ExtractSuccess reports whether a response should be treated as successful:
// a literal true under "success", "status" or "ok", or the presence of a
// non-negative extractable balance.
func ExtractSuccess(v interface{}) bool {
	if m, ok := v.(map[string]interface{}); ok {
		for _, key := range []string{"success", "status", "ok"} {
			if b, ok := m[key].(bool); ok && b {
				return true
			}
		}
	}
	if n, ok := ExtractBalance(v); ok && n >= 0 {
		return true
	}
	return false
}

// ExtractMessage pulls a human-readable message from "message", "msg" or
// "error" at the top level, then "data.message", falling back to the given
// default.
func ExtractMessage(v interface{}, fallback string) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return fallback
	}
	for _, key := range []string{"message", "msg", "error"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	if inner, ok := m["data"].(map[string]interface{}); ok {
		if s, ok := inner["message"].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// Insufficiency classification for balance-related failures.
const (
	InsufficiencyNone     = ""
	InsufficiencyProvider = "provider_balance"
	InsufficiencyUser     = "user_balance"
)

// ClassifyInsufficiency guesses whose balance a failure message is about.
// Heuristic by necessity: the upstreams return free-form text.
func ClassifyInsufficiency(msg string) string {
	s := strings.ToLower(msg)
	if !strings.Contains(s, "balance") && !strings.Contains(s, "saldo") {
		return InsufficiencyNone
	}
	if strings.Contains(s, "provider") || strings.Contains(s, "vendor") || strings.Contains(s, "upstream") {
		return InsufficiencyProvider
	}
	if strings.Contains(s, "insufficient") || strings.Contains(s, "not enough") ||
		strings.Contains(s, "tidak cukup") || strings.Contains(s, "kurang") {
		return InsufficiencyUser
	}
	return InsufficiencyNone
}

func numberField(m map[string]interface{}, keys ...string) (int64, bool) {
	for _, key := range keys {
		switch n := m[key].(type) {
		case float64:
			return int64(n), true
		case int64:
			return n, true
		case string:
			if parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

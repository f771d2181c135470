// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build pinauth_debug

package verifier

import "os"

// allowNonRootOverride reports whether PINAUTH_DEBUG_ALLOW_NONROOT may
// waive the privilege gate. Builds tagged pinauth_debug honor it, but
// only when that variable is explicitly set to "1" (mirrors
// check_pin.rs's env::var("ALLOW_NON_ROOT").ok().as_deref() != Some("1")
// check) — the build tag alone must not widen the gate.
func allowNonRootOverride() bool {
	return os.Getenv("PINAUTH_DEBUG_ALLOW_NONROOT") == "1"
}

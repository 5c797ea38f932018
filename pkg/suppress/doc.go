// Package suppress gates outbound capture while inbound changes are
// being applied.
//
// When the agent applies actions from the note bridge it mutates local
// bookmarks, and those mutations fire the same observer events a user
// edit would. Without a gate every applied change would be captured,
// enqueued, and sent straight back to the bridge as a phantom edit.
//
// The gate has two parts:
//
//   - the apply epoch, a boolean window held open for the duration of
//     an apply cycle
//   - the cooldown, a 3 second tail armed when the epoch closes, which
//     absorbs observer events that are delivered after the apply
//     finished
//
// An apply cycle brackets itself with SetApplyEpoch(true), then on
// exit (success or failure) SetApplyEpoch(false) followed by
// SetCooldown(CooldownMs). Order matters: closing the epoch clears any
// existing cooldown, so the tail is armed after the close.
//
// The state itself lives in the persisted managed state, so a crash
// mid-apply leaves the epoch open; the next apply cycle resets it.
package suppress

// SPDX-License-Identifier: ice License 1.0

package drafts

// Merge decides whether a remote draft replaces the local one with the same
// id. Last-write-wins on the LastSaved logical clock: only a strictly
// greater remote timestamp replaces, ties keep local. Equal-or-older remote
// state is ignored, not an error.
func Merge(local, remote *Draft) Decision {
	if remote == nil {
		return DecisionKeep
	}
	if local == nil {
		return DecisionReplace
	}
	if remote.LastSaved > local.LastSaved {
		return DecisionReplace
	}

	return DecisionKeep
}

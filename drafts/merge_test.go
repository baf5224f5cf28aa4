// SPDX-License-Identifier: ice License 1.0

package drafts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		local    *Draft
		remote   *Draft
		expected Decision
	}{
		{name: "NoRemote", local: &Draft{LastSaved: 100}, expected: DecisionKeep},
		{name: "NoLocal", remote: &Draft{LastSaved: 100}, expected: DecisionReplace},
		{name: "RemoteNewer", local: &Draft{LastSaved: 100}, remote: &Draft{LastSaved: 200}, expected: DecisionReplace},
		{name: "LocalNewer", local: &Draft{LastSaved: 200}, remote: &Draft{LastSaved: 100}, expected: DecisionKeep},
		{name: "TieKeepsLocal", local: &Draft{LastSaved: 100}, remote: &Draft{LastSaved: 100}, expected: DecisionKeep},
		{name: "BothNil", expected: DecisionKeep},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.expected, Merge(tt.local, tt.remote))
		})
	}
}

// SPDX-License-Identifier: ice License 1.0

package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestPublishDraftFlagIsRequired(t *testing.T) {
	t.Parallel()

	flag := publishDraft.Flags().Lookup("draft")
	require.NotNil(t, flag)
	require.Contains(t, flag.Annotations[cobra.BashCompOneRequiredFlag], "true")
}

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RhyVis/meta-manager/pkg/types"
)

func TestRenderRecordsFooterKeepsCase(t *testing.T) {
	rec := types.NewRecord("Portal 2", types.ParsePlatform("Steam"), "620", "")
	rec.SetSize(2048)

	var buf bytes.Buffer
	renderRecords(&buf, []*types.Record{rec})

	out := buf.String()
	assert.Contains(t, out, "1 entries")
	assert.NotContains(t, out, "1 ENTRIES")
	assert.Contains(t, out, "Steam 620")
	assert.Contains(t, out, "2.0 KiB")
}

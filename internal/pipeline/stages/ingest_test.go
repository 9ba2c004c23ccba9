package stages

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Aspirin inhibits COX-2. Inflammation decreases! Does risk drop? 2020 data says yes.")
	require.Len(t, got, 4)
	assert.Equal(t, "Aspirin inhibits COX-2.", got[0])
	assert.Equal(t, "Inflammation decreases!", got[1])
	assert.Equal(t, "Does risk drop?", got[2])
	assert.Equal(t, "2020 data says yes.", got[3])
}

func TestSplitSentencesKeepsAbbreviations(t *testing.T) {
	// A period followed by a lower-case continuation is not a boundary.
	got := splitSentences("Treatment with approx. half the dose worked. Second sentence here.")
	require.Len(t, got, 2)
	assert.Equal(t, "Treatment with approx. half the dose worked.", got[0])
}

func TestSliceIntoBlocksSentenceCap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("Short sentence here. ")
	}
	blocks := sliceIntoBlocks(1, "src-1", sb.String())

	require.Len(t, blocks, 3)
	for i, b := range blocks {
		assert.Equal(t, i, b.BlockOrder)
		assert.Equal(t, "sentence_group", b.SegmentationStrategy)
		assert.Equal(t, "src-1", b.IngestionSourceID)
		assert.LessOrEqual(t, strings.Count(b.BlockText, "."), maxSentencesPerBlock)
	}
}

func TestSliceIntoBlocksCharCap(t *testing.T) {
	long := "This sentence is padded out " + strings.Repeat("with filler words ", 40) + "and ends here."
	text := long + " " + long + " " + long
	blocks := sliceIntoBlocks(1, "src-1", text)

	require.Len(t, blocks, 3)
	for _, b := range blocks {
		// A block never splits mid-sentence even over the char cap.
		assert.True(t, strings.HasSuffix(b.BlockText, "ends here."))
	}
}

func TestSliceIntoBlocksEmpty(t *testing.T) {
	assert.Nil(t, sliceIntoBlocks(1, "src-1", "   "))
}

func TestSplitSpansRespectsParagraphs(t *testing.T) {
	para := strings.Repeat("x", 3000)
	text := para + "\n\n" + para + "\n\n" + para
	spans := splitSpans(text, 8000)

	require.Len(t, spans, 2)
	assert.Contains(t, spans[0], "\n\n")
	for _, s := range spans {
		assert.LessOrEqual(t, len(s), 8000)
	}
}

func TestSplitSpansShortTextPassesThrough(t *testing.T) {
	spans := splitSpans("short", 8000)
	require.Equal(t, []string{"short"}, spans)
}

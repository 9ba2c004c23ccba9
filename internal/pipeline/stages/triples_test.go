package stages

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/colligo/internal/models"
)

func testBlock() *models.TextBlock {
	return models.NewTextBlock(1, "src-1", "text", 0, "sentence_group")
}

func TestParseTriplesRecoversFromCommentary(t *testing.T) {
	response := `Here are the extracted triples:

aspirin | inhibits | COX-2
- inflammation | causes | pain
COX-2 | increases | prostaglandins

I hope this helps!`

	got := parseTriples(response, 1, testBlock(), "gemini")
	require.Len(t, got, 3)
	assert.Equal(t, "aspirin", got[0].Subject)
	assert.Equal(t, "inhibits", got[0].Predicate)
	assert.Equal(t, "COX-2", got[0].Object)
	assert.Equal(t, "inflammation", got[1].Subject)
	assert.Equal(t, "gemini", got[0].ExtractorName)
}

func TestParseTriplesDropsMalformedLines(t *testing.T) {
	response := strings.Join([]string{
		"a | b | c",
		"only | two",
		"one | two | three | four",
		"| | ",
		"a | b | c | ",
	}, "\n")

	got := parseTriples(response, 1, testBlock(), "gemini")
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Subject)
}

func TestParseTriplesFieldCap(t *testing.T) {
	long := strings.Repeat("x", maxTripleFieldChars+1)
	got := parseTriples("a | b | "+long, 1, testBlock(), "gemini")
	assert.Empty(t, got)

	ok := strings.Repeat("y", maxTripleFieldChars)
	got = parseTriples("a | b | "+ok, 1, testBlock(), "gemini")
	assert.Len(t, got, 1)
}

func TestParseTriplesCarriesProvenance(t *testing.T) {
	block := testBlock()
	got := parseTriples("a | relates to | b", 7, block, "claude")
	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].JobID)
	assert.Equal(t, block.ID, got[0].BlockID)
	assert.Equal(t, block.IngestionSourceID, got[0].IngestionSourceID)
}

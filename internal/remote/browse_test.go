package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseListing(t *testing.T) {
	out := "etc/\nnotes.txt\n.hidden\nphotos/\n\n"
	entries := parseListing(out)

	assert.Equal(t, []Entry{
		{Name: "etc", IsDir: true},
		{Name: "notes.txt"},
		{Name: ".hidden"},
		{Name: "photos", IsDir: true},
	}, entries)
}

func TestParseListingEmpty(t *testing.T) {
	assert.Empty(t, parseListing(""))
	assert.Empty(t, parseListing("\n\n"))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'/var/www'", shellQuote("/var/www"))
	assert.Equal(t, "'/with space'", shellQuote("/with space"))
	assert.Equal(t, `'/it'\''s here'`, shellQuote("/it's here"))
}

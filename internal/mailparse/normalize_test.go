package mailparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_PrefersPlainText(t *testing.T) {
	text := "line one\n\n\n\nline two\nhttps://example.com/kept"
	assert.Equal(t, text, Normalize(text, "<p>ignored</p>"))
}

func TestNormalize_HTMLFallback(t *testing.T) {
	html := `<html><body>
<p>Charged 1200 JPY at Cafe Foo</p>
<p><a href="https://tracking.example/x">View details</a></p>
<p>https://tracking.example/raw-link</p>
<br><br><br><br>
<p>Card: VISA-1234</p>
</body></html>`

	got := Normalize("", html)

	assert.Contains(t, got, "Charged 1200 JPY at Cafe Foo")
	assert.Contains(t, got, "Card: VISA-1234")
	assert.NotContains(t, got, "https://tracking.example/raw-link")
	assert.NotContains(t, got, "https://tracking.example/x")
	assert.NotContains(t, got, "\n\n\n")
}

func TestNormalize_NoBodies(t *testing.T) {
	assert.Equal(t, "", Normalize("", ""))
	assert.Equal(t, "", Normalize("   ", " \n "))
}

func TestMessageBody(t *testing.T) {
	m := &Message{HTML: "<p>hello</p>"}
	assert.Equal(t, "hello", m.Body())
}

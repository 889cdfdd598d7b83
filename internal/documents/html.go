package documents

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// htmlText renders an HTML page as Markdown. Headings, lists and paragraph
// breaks survive as plain text; head, script and style content is dropped.
func htmlText(data []byte) (string, error) {
	text, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

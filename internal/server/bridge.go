package server

import (
	"strings"

	"golang.org/x/net/html"
)

// bridgeScript answers restart requests from the host page. It is added to
// the served copy of a document only.
const bridgeScript = `<script>
(function () {
  window.addEventListener("message", function (ev) {
    var msg = ev.data || {};
    if (msg.type !== "gameforge:restart") return;
    var ok = false;
    try {
      var fn = window.restartGame || window.resetGame;
      if (typeof fn === "function") { fn(); ok = true; }
    } catch (e) {
      ok = false;
    }
    ev.source.postMessage({ type: "gameforge:restart_result", id: msg.id, ok: ok }, "*");
  });
})();
</script>`

// injectBridge inserts bridgeScript before the closing body tag, or the
// closing html tag, or at the end. Raw text inside scripts and styles is
// skipped, so a "</body>" string in game code is not mistaken for the tag.
func injectBridge(doc string) string {
	at := insertionPoint(doc)
	return doc[:at] + bridgeScript + "\n" + doc[at:]
}

func insertionPoint(doc string) int {
	z := html.NewTokenizer(strings.NewReader(doc))
	bodyEnd, htmlEnd := -1, -1
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			switch string(name) {
			case "body":
				bodyEnd = offset
			case "html":
				htmlEnd = offset
			}
		}
		offset += raw
	}
	switch {
	case bodyEnd >= 0:
		return bodyEnd
	case htmlEnd >= 0:
		return htmlEnd
	}
	return len(doc)
}

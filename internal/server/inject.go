package server

import (
	"bytes"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// reloadScriptPath is where the live-reload client is served.
const reloadScriptPath = "/__kiln/reload.js"

// InjectReloadScript adds the live-reload client to an HTML document just
// before </body>. Documents the parser cannot handle get the tag appended.
func InjectReloadScript(doc []byte) []byte {
	tag := []byte(`<script src="` + reloadScriptPath + `"></script>`)
	if bytes.Contains(doc, []byte(reloadScriptPath)) {
		return doc
	}

	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return append(doc, tag...)
	}
	body := findBody(root)
	if body == nil {
		return append(doc, tag...)
	}

	script := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr:     []html.Attribute{{Key: "src", Val: reloadScriptPath}},
	}
	body.AppendChild(script)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return append(doc, tag...)
	}
	return buf.Bytes()
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body := findBody(c); body != nil {
			return body
		}
	}
	return nil
}

// reloadClient connects to the hub and reloads the page, or only its
// stylesheets for styles changes. It reconnects after the server restarts.
const reloadClient = `(function () {
  var url = (location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/__kiln/ws";
  function refreshStyles() {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    for (var i = 0; i < links.length; i++) {
      var href = links[i].href.replace(/[?&]kiln=\d+/, "");
      links[i].href = href + (href.indexOf("?") >= 0 ? "&" : "?") + "kiln=" + Date.now();
    }
  }
  function connect() {
    var ws = new WebSocket(url);
    ws.onmessage = function (event) {
      var msg = JSON.parse(event.data);
      if (msg.type === "css") {
        refreshStyles();
      } else {
        location.reload();
      }
    };
    ws.onclose = function () {
      setTimeout(connect, 1000);
    };
  }
  connect();
})();
`

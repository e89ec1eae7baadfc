package locator

import (
	"github.com/dgnsrekt/positions_watch/internal/cdp"
)

// MarkAttr is set on the chosen element so it can be captured later.
const MarkAttr = "data-active-positions"

// SectionSelector addresses the marked element.
const SectionSelector = `[` + MarkAttr + `="1"]`

func snapshotScript(marker string) string {
	return cdp.WrapScript(`
var marker = ` + cdp.JSString(marker) + `.toUpperCase();
var root = document.body;
if (!root) {
  return JSON.stringify({ok:false,error_code:"` + cdp.CodeNotFound + `",error_message:"document has no body"});
}
function snap(el) {
  var rect = el.getBoundingClientRect();
  var match = (el.textContent || "").toUpperCase().indexOf(marker) !== -1;
  var node = {tag: el.tagName.toLowerCase(), text: (el.innerText || "").trim(), height: rect.height, match: match};
  if (match) {
    node.children = [];
    for (var i = 0; i < el.children.length; i++) {
      node.children.push(snap(el.children[i]));
    }
  }
  return node;
}
return JSON.stringify({ok:true,data:snap(root)});
`)
}

func markScript(path []int) string {
	return cdp.WrapScript(`
var prev = document.querySelectorAll("[` + MarkAttr + `]");
for (var i = 0; i < prev.length; i++) { prev[i].removeAttribute("` + MarkAttr + `"); }
var path = ` + cdp.JSJSON(path) + `;
var el = document.body;
for (var j = 0; el && j < path.length; j++) { el = el.children[path[j]]; }
if (!el) {
  return JSON.stringify({ok:false,error_code:"` + cdp.CodeNotFound + `",error_message:"section element moved before it could be marked"});
}
el.setAttribute("` + MarkAttr + `", "1");
try { el.scrollIntoView({block: "center"}); } catch (_) {}
return JSON.stringify({ok:true,data:{text:(el.innerText || "").trim()}});
`)
}

func pageTextScript() string {
	return cdp.WrapScript(`
var body = document.body;
return JSON.stringify({ok:true,data:{text:body ? (body.innerText || "") : ""}});
`)
}

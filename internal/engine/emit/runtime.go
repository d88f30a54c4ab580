package emit

import (
	"fmt"
	"strconv"
	"strings"

	"jspack/internal/engine/hoist"
)

// runtimeCore backs wrapped modules and namespace objects. Exports are
// defined as getters so importers observe live bindings, including inside
// import cycles.
var runtimeCore = strings.NewReplacer(
	"$modules", hoist.ModulesVar,
	"$cache", hoist.CacheVar,
	"$require", hoist.RequireFn,
	"$export", hoist.ExportFn,
	"$namespace", hoist.NamespaceFn,
).Replace(`var $modules = {};
var $cache = {};
function $require(id) {
  var cached = $cache[id];
  if (cached) return cached.exports;
  var module = $cache[id] = { exports: {} };
  $modules[id].call(module.exports, module, module.exports);
  return module.exports;
}
function $export(target, getters, sources) {
  for (var name in getters) {
    Object.defineProperty(target, name, { enumerable: true, get: getters[name] });
  }
  (sources || []).forEach(function (source) {
    if (source == null) return;
    Object.keys(source).forEach(function (key) {
      if (key === "default" || Object.prototype.hasOwnProperty.call(target, key)) return;
      Object.defineProperty(target, key, { enumerable: true, get: function () { return source[key]; } });
    });
  });
  return target;
}
function $namespace(getters, sources) {
  var ns = $export(Object.create(null), getters, sources);
  if (typeof Symbol !== "undefined") {
    Object.defineProperty(ns, Symbol.toStringTag, { value: "Module" });
  }
  return Object.freeze(ns);
}
`)

var runtimeExternal = strings.ReplaceAll(`function $external(id) {
  if (typeof require === "function") return require(id);
  throw new Error("external module " + id + " is not available");
}
`, "$external", hoist.ExternalFn)

// getterObject renders {name: function () { return expr; }, ...}.
func getterObject(getters []hoist.Getter) string {
	if len(getters) == 0 {
		return "{}"
	}
	parts := make([]string, len(getters))
	for i, g := range getters {
		parts[i] = fmt.Sprintf("  %s: function () { return %s; }", hoist.PropertyKey(g.Name), g.Expr)
	}
	return "{\n" + strings.Join(parts, ",\n") + "\n}"
}

func sourceList(sources []string) string {
	return "[" + strings.Join(sources, ", ") + "]"
}

func wrapperHeader(id int, s *hoist.Scope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d] = function (module, exports) {\n", hoist.ModulesVar, id)
	if !s.PureCommonJS() {
		fmt.Fprintf(&b, "%s(exports, %s, %s);\n", hoist.ExportFn, getterObject(s.Getters), sourceList(s.StarSources))
	}
	return b.String()
}

func namespaceDecl(s *hoist.Scope) string {
	return fmt.Sprintf("var %s = %s(%s, %s);\n", s.Namespace, hoist.NamespaceFn, getterObject(s.Getters), sourceList(s.StarSources))
}

func exportClause(exports []hoist.EntryExport) string {
	parts := make([]string, len(exports))
	for i, e := range exports {
		switch {
		case e.Local == e.Name:
			parts[i] = e.Name
		case hoist.IsIdentifier(e.Name):
			parts[i] = e.Local + " as " + e.Name
		default:
			parts[i] = e.Local + " as " + strconv.Quote(e.Name)
		}
	}
	return "export { " + strings.Join(parts, ", ") + " };\n"
}

package parser

import "testing"

func FuzzParseJavaScript(f *testing.F) {
	f.Add([]byte("import def, { a as b } from './dep';\nexport default function () { return b; }\n"))
	f.Add([]byte("export * from 'pkg';\nconst x = require('./x');\n"))
	f.Add([]byte("export { a, b as c };\nlet a = 1, b = 2;\n"))
	p := NewParser(NewGrammarLoader(nil))
	f.Fuzz(func(t *testing.T, data []byte) {
		// Syntax errors are reported, never panicked on.
		_, _ = p.Parse("fuzz.js", data)
	})
}

func FuzzParseTypeScript(f *testing.F) {
	f.Add([]byte("import type { T } from './t';\nexport interface I { a: T }\nexport const v: number = 1;\n"))
	p := NewParser(NewGrammarLoader(nil))
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = p.Parse("fuzz.ts", data)
	})
}

// Package catalog holds the static, process-global table mapping each
// supported language to its container image, compile/run command
// templates, on-disk filename, and resource ceilings. The catalog is
// configuration data, never code: the Sandbox Driver treats it as a
// read-only lookup.
package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Language describes everything the Sandbox Driver needs to compile (if
// applicable) and run one submission.
type Language struct {
	ID // python3, java, cpp, ...

	Image string

	// CompileCommand and RunCommand entries may contain the placeholder
	// "{{file}}", substituted with the source filename at invocation time.
	// An empty CompileCommand means the language has no separate compile
	// step.
	CompileCommand []string
	RunCommand     []string

	// Filename is the name the source file is written under inside the
	// workspace, e.g. "Solution.java" or "solution.cpp".
	Filename string

	RunTimeout     time.Duration
	CompileTimeout time.Duration
	MemoryLimitMB  int64

	// Extension is surfaced on GET /languages.
	Extension string
}

// ID is a closed-set language identifier.
type ID string

const (
	Python3    ID = "python3"
	Python2    ID = "python2"
	Java       ID = "java"
	Cpp        ID = "cpp"
	C          ID = "c"
	JavaScript ID = "javascript"
	TypeScript ID = "typescript"
	Rust       ID = "rust"
	Go         ID = "go"
	Ruby       ID = "ruby"
	PHP        ID = "php"
	CSharp     ID = "csharp"
)

const (
	defaultRunTimeout     = 10 * time.Second
	defaultCompileTimeout = 30 * time.Second
	defaultMemoryMB       = 128
	elevatedMemoryMB      = 256
)

// catalog is immutable after package initialization; callers receive copies
// via Lookup/All.
var catalog = buildCatalog()

func buildCatalog() map[ID]Language {
	run := func(parts ...string) []string { return parts }

	entries := []Language{
		{
			ID:            Python3,
			Image:         "python:3.12-slim-bookworm",
			RunCommand:    run("python3", "-u", "{{file}}"),
			Filename:      "solution.py",
			Extension:     "py",
			RunTimeout:    defaultRunTimeout,
			MemoryLimitMB: defaultMemoryMB,
		},
		{
			ID:            Python2,
			Image:         "python:2.7-slim",
			RunCommand:    run("python2", "-u", "{{file}}"),
			Filename:      "solution.py",
			Extension:     "py",
			RunTimeout:    defaultRunTimeout,
			MemoryLimitMB: defaultMemoryMB,
		},
		{
			ID:             Java,
			Image:          "eclipse-temurin:21-jdk-jammy",
			CompileCommand: run("javac", "{{file}}"),
			RunCommand:     run("java", "-cp", ".", "Solution"),
			Filename:       "Solution.java",
			Extension:      "java",
			RunTimeout:     defaultRunTimeout,
			MemoryLimitMB:  elevatedMemoryMB,
		},
		{
			ID:             Cpp,
			Image:          "gcc:13-bookworm",
			CompileCommand: run("g++", "-O2", "-std=c++17", "-o", "solution", "{{file}}"),
			RunCommand:     run("./solution"),
			Filename:       "solution.cpp",
			Extension:      "cpp",
			RunTimeout:     defaultRunTimeout,
			MemoryLimitMB:  defaultMemoryMB,
		},
		{
			ID:             C,
			Image:          "gcc:13-bookworm",
			CompileCommand: run("gcc", "-O2", "-lm", "-o", "solution", "{{file}}"),
			RunCommand:     run("./solution"),
			Filename:       "solution.c",
			Extension:      "c",
			RunTimeout:     defaultRunTimeout,
			MemoryLimitMB:  defaultMemoryMB,
		},
		{
			ID:            JavaScript,
			Image:         "node:20-slim",
			RunCommand:    run("node", "{{file}}"),
			Filename:      "solution.js",
			Extension:     "js",
			RunTimeout:    defaultRunTimeout,
			MemoryLimitMB: defaultMemoryMB,
		},
		{
			ID:            TypeScript,
			Image:         "node:20-slim",
			RunCommand:    run("sh", "-lc", "npx --yes tsx {{file}}"),
			Filename:      "solution.ts",
			Extension:     "ts",
			RunTimeout:    defaultRunTimeout,
			MemoryLimitMB: elevatedMemoryMB,
		},
		{
			ID:             Rust,
			Image:          "rust:1.75-slim-bookworm",
			CompileCommand: run("rustc", "-O", "-o", "solution", "{{file}}"),
			RunCommand:     run("./solution"),
			Filename:       "solution.rs",
			Extension:      "rs",
			RunTimeout:     defaultRunTimeout,
			MemoryLimitMB:  elevatedMemoryMB,
		},
		{
			ID:            Go,
			Image:         "golang:1.22-bookworm",
			RunCommand:    run("go", "run", "{{file}}"),
			Filename:      "solution.go",
			Extension:     "go",
			RunTimeout:    defaultRunTimeout,
			MemoryLimitMB: elevatedMemoryMB,
		},
		{
			ID:            Ruby,
			Image:         "ruby:3.3-slim",
			RunCommand:    run("ruby", "{{file}}"),
			Filename:      "solution.rb",
			Extension:     "rb",
			RunTimeout:    defaultRunTimeout,
			MemoryLimitMB: defaultMemoryMB,
		},
		{
			ID:            PHP,
			Image:         "php:8.3-cli",
			RunCommand:    run("php", "{{file}}"),
			Filename:      "solution.php",
			Extension:     "php",
			RunTimeout:    defaultRunTimeout,
			MemoryLimitMB: defaultMemoryMB,
		},
		{
			ID:             CSharp,
			Image:          "mcr.microsoft.com/dotnet/sdk:8.0",
			CompileCommand: run("sh", "-lc", "csc -out:solution.exe {{file}}"),
			RunCommand:     run("mono", "solution.exe"),
			Filename:       "solution.cs",
			Extension:      "cs",
			RunTimeout:     defaultRunTimeout,
			MemoryLimitMB:  elevatedMemoryMB,
		},
	}

	for i := range entries {
		if entries[i].CompileTimeout == 0 {
			entries[i].CompileTimeout = defaultCompileTimeout
		}
	}

	m := make(map[ID]Language, len(entries))
	for _, l := range entries {
		m[l.ID] = l
	}
	return m
}

// Lookup returns the catalog entry for a language id. The id is
// case-folded and trimmed before matching, so "Python3", "python3 ", and
// "python3" all resolve to the same entry.
func Lookup(id string) (Language, bool) {
	l, ok := catalog[ID(strings.ToLower(strings.TrimSpace(id)))]
	return l, ok
}

// Valid reports whether id belongs to the closed set of supported languages.
func Valid(id string) bool {
	_, ok := Lookup(id)
	return ok
}

// All returns every catalog entry in a fixed order (the order the language
// constants are declared in), for deterministic listing.
func All() []Language {
	order := []ID{Python3, Python2, Java, Cpp, C, JavaScript, TypeScript, Rust, Go, Ruby, PHP, CSharp}
	out := make([]Language, 0, len(order))
	for _, id := range order {
		out = append(out, catalog[id])
	}
	return out
}

// RenderCommand substitutes the "{{file}}" placeholder in a command
// template with the given filename.
func RenderCommand(template []string, filename string) []string {
	out := make([]string, len(template))
	for i, part := range template {
		out[i] = strings.ReplaceAll(part, "{{file}}", filename)
	}
	return out
}

// ApplyOverrides mutates limits on a copy of the catalog entry using the
// global configuration ceilings when the per-language catalog doesn't
// already define a tighter value. Returns the adjusted copy.
func ApplyOverrides(l Language, maxMemoryMB int64, maxWallTime time.Duration) Language {
	if maxMemoryMB > 0 && l.MemoryLimitMB > maxMemoryMB {
		l.MemoryLimitMB = maxMemoryMB
	}
	if maxWallTime > 0 && l.RunTimeout > maxWallTime {
		l.RunTimeout = maxWallTime
	}
	return l
}

func (l Language) String() string {
	return fmt.Sprintf("%s(image=%s)", l.ID, l.Image)
}

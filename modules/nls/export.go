package nls

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/manifest"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/text/language"
)

const xliffNamespace = "urn:oasis:names:tc:xliff:document:1.2"

// ExportInput defines the arguments of an nls_export action.
type ExportInput struct {
	// Strings are manifest string tables such as package.nls.json.
	Strings []string `hcl:"strings,optional"`
	// Bundles are runtime string bundles such as bundle.l10n.json.
	Bundles        []string `hcl:"bundles,optional"`
	Out            string   `hcl:"out"`
	SourceLanguage string   `hcl:"source_language,optional"`
}

// ExportOutput is published as the task result.
type ExportOutput struct {
	Path  string `cty:"path"`
	Count int    `cty:"count"`
}

type xliffDoc struct {
	XMLName xml.Name    `xml:"xliff"`
	Version string      `xml:"version,attr"`
	Xmlns   string      `xml:"xmlns,attr"`
	Files   []xliffFile `xml:"file"`
}

type xliffFile struct {
	Original       string      `xml:"original,attr"`
	SourceLanguage string      `xml:"source-language,attr"`
	Datatype       string      `xml:"datatype,attr"`
	Units          []transUnit `xml:"body>trans-unit"`
}

type transUnit struct {
	ID     string `xml:"id,attr"`
	Source string `xml:"source"`
	Note   string `xml:"note,omitempty"`
}

// OnRunExport collects every string from the inputs and writes one XLIFF
// file element per input.
func OnRunExport(ctx context.Context, input *ExportInput) (cty.Value, error) {
	if len(input.Strings)+len(input.Bundles) == 0 {
		return cty.NilVal, fmt.Errorf("nls_export needs at least one strings or bundles file")
	}
	lang := input.SourceLanguage
	if lang == "" {
		lang = "en"
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid source language '%s': %w", lang, err)
	}

	doc := xliffDoc{Version: "1.2", Xmlns: xliffNamespace}
	count := 0
	for _, p := range append(append([]string{}, input.Strings...), input.Bundles...) {
		table, err := manifest.Read(buildctx.Resolve(ctx, p))
		if err != nil {
			return cty.NilVal, fmt.Errorf("failed to read strings: %w", err)
		}
		units, err := transUnits(table)
		if err != nil {
			return cty.NilVal, fmt.Errorf("%s: %w", p, err)
		}
		doc.Files = append(doc.Files, xliffFile{
			Original:       strings.TrimSuffix(filepath.ToSlash(p), ".json"),
			SourceLanguage: tag.String(),
			Datatype:       "plaintext",
			Units:          units,
		})
		count += len(units)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to encode XLIFF: %w", err)
	}
	out := buildctx.Resolve(ctx, input.Out)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return cty.NilVal, fmt.Errorf("failed to create output directory: %w", err)
	}
	content := append([]byte(xml.Header), data...)
	content = append(content, '\n')
	if err := os.WriteFile(out, content, 0o644); err != nil {
		return cty.NilVal, fmt.Errorf("failed to write '%s': %w", input.Out, err)
	}

	ctxlog.FromContext(ctx).Info("Exported translatable strings.", "path", input.Out, "count", count)
	return registry.OutputValue(ExportOutput{Path: input.Out, Count: count})
}

// transUnits accepts both plain string entries and entries of the form
// {"message": "...", "comment": "..." | ["...", ...]}.
func transUnits(table manifest.Manifest) ([]transUnit, error) {
	units := make([]transUnit, 0, len(table))
	for _, key := range table.Keys() {
		switch v := table[key].(type) {
		case string:
			units = append(units, transUnit{ID: key, Source: v})
		case map[string]any:
			msg, ok := v["message"].(string)
			if !ok {
				return nil, fmt.Errorf("string '%s' has no message", key)
			}
			units = append(units, transUnit{ID: key, Source: msg, Note: comment(v["comment"])})
		default:
			return nil, fmt.Errorf("string '%s' must be a string or an object, got %s", key, jsonKind(v))
		}
	}
	return units, nil
}

func comment(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		parts := make([]string, 0, len(c))
		for _, p := range c {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number:
		return "number"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

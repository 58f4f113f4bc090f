package nls

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/httpx"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/text/language"
)

// maxEntrySize caps a single extracted bundle.
const maxEntrySize = 32 << 20

// bundleName matches the per-locale files inside a localization archive.
var bundleName = regexp.MustCompile(`^(package\.nls|bundle\.l10n)\.([A-Za-z0-9-]+)\.json$`)

// DownloadInput defines the arguments of an nls_download action.
type DownloadInput struct {
	URL  string `hcl:"url"`
	Dest string `hcl:"dest"`
	// Locales limits extraction. Every listed locale must be present in the
	// archive. Empty means all.
	Locales []string `hcl:"locales,optional"`
	Timeout string   `hcl:"timeout,optional"`
	Retries int      `hcl:"retries,optional"`
}

// DownloadOutput is published as the task result.
type DownloadOutput struct {
	Locales []string `cty:"locales"`
	Files   []string `cty:"files"`
}

// OnRunDownload fetches the archive and extracts the bundles into Dest.
func OnRunDownload(ctx context.Context, input *DownloadInput) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	wanted, err := parseLocales(input.Locales)
	if err != nil {
		return cty.NilVal, err
	}
	timeout, err := httpx.ParseTimeout(input.Timeout, httpx.DefaultTimeout)
	if err != nil {
		return cty.NilVal, err
	}

	client := httpx.NewClient(timeout, input.Retries)
	defer client.Close()

	logger.Info("Downloading localization archive.", "url", input.URL)
	resp, err := client.R().SetContext(ctx).Get(input.URL)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to download localization archive: %w", err)
	}
	if err := httpx.Check(resp, input.URL); err != nil {
		return cty.NilVal, err
	}

	body := resp.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return cty.NilVal, fmt.Errorf("localization archive is not a zip file: %w", err)
	}

	dest := buildctx.Resolve(ctx, input.Dest)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return cty.NilVal, fmt.Errorf("failed to create '%s': %w", input.Dest, err)
	}

	found := map[string]bool{}
	sources := map[string]string{}
	files := []string{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		base := path.Base(f.Name)
		match := bundleName.FindStringSubmatch(base)
		if match == nil {
			continue
		}
		locale := strings.ToLower(match[2])
		if len(wanted) > 0 && !wanted[locale] {
			continue
		}
		if prev, ok := sources[base]; ok {
			return cty.NilVal, fmt.Errorf("localization archive has more than one '%s': '%s' and '%s'", base, prev, f.Name)
		}
		sources[base] = f.Name
		if err := extract(f, filepath.Join(dest, base)); err != nil {
			return cty.NilVal, err
		}
		found[locale] = true
		files = append(files, filepath.ToSlash(filepath.Join(input.Dest, base)))
		logger.Debug("Extracted localization bundle.", "file", base)
	}

	for l := range wanted {
		if !found[l] {
			return cty.NilVal, fmt.Errorf("locale '%s' not found in localization archive", l)
		}
	}

	locales := make([]string, 0, len(found))
	for l := range found {
		locales = append(locales, l)
	}
	sort.Strings(locales)
	sort.Strings(files)

	logger.Info("Downloaded localization bundles.", "locales", len(locales), "files", len(files))
	return registry.OutputValue(DownloadOutput{Locales: locales, Files: files})
}

// parseLocales validates the requested tags and returns them lower-cased as
// they appear in bundle file names.
func parseLocales(locales []string) (map[string]bool, error) {
	wanted := make(map[string]bool, len(locales))
	for _, l := range locales {
		if _, err := language.Parse(l); err != nil {
			return nil, fmt.Errorf("invalid locale '%s': %w", l, err)
		}
		wanted[strings.ToLower(l)] = true
	}
	return wanted, nil
}

func extract(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open '%s' in archive: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", target, err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to extract '%s': %w", f.Name, err)
	}
	if n > maxEntrySize {
		return fmt.Errorf("archive entry '%s' is larger than %d bytes", f.Name, maxEntrySize)
	}
	return nil
}

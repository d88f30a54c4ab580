package app

import (
	"log/slog"
	"strings"

	"jspack/internal/core/errors"
	"jspack/internal/shared/util"
)

// WriteOutputs writes the bundle to outFile, its source map to outFile.map
// and the CSS asset next to it with a .css extension. It returns the paths
// written.
func WriteOutputs(outFile string, result *BundleResult) ([]string, error) {
	written := make([]string, 0, 3)
	write := func(path, asset string, data []byte) error {
		if err := util.WriteFileWithDirs(path, data, 0o644); err != nil {
			return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "write "+asset+" output"), errors.CtxPath, path)
		}
		written = append(written, path)
		return nil
	}

	if err := write(outFile, "js", result.Code); err != nil {
		return written, err
	}
	if len(result.Map) > 0 {
		if err := write(outFile+".map", "map", result.Map); err != nil {
			return written, err
		}
	}
	if len(result.CSS) > 0 {
		if err := write(cssPathFor(outFile), "css", result.CSS); err != nil {
			return written, err
		}
	}
	slog.Debug("outputs written", "files", written)
	return written, nil
}

func cssPathFor(outFile string) string {
	for _, ext := range []string{".mjs", ".cjs", ".js"} {
		if strings.HasSuffix(outFile, ext) {
			return strings.TrimSuffix(outFile, ext) + ".css"
		}
	}
	return outFile + ".css"
}

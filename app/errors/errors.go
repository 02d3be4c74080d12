package errors

import (
	"errors"
	"log/slog"
	"sort"
)

// KindOf returns the classification of err, or an empty Kind if err is not a
// StructuredError or carries no kind.
func KindOf(err error) Kind {
	var serr *StructuredError
	if errors.As(err, &serr) {
		return serr.kind
	}
	return ""
}

// Log logs an error with the given slog logger, extracting the kind, cause
// and metadata as attributes if it's a StructuredError.
func Log(logger *slog.Logger, err error) {
	var serr *StructuredError
	if !errors.As(err, &serr) {
		logger.Error(err.Error())
		return
	}

	args := make([]any, 0, len(serr.metadata)*2+4)

	if serr.kind != "" {
		args = append(args, "kind", serr.kind)
	}

	cause := serr.metadata["cause"]
	if serr.cause != nil {
		cause = serr.cause
	}
	if cause != nil {
		args = append(args, "cause", cause)
	}

	keys := make([]string, 0, len(serr.metadata))
	for k := range serr.metadata {
		if k != "cause" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		args = append(args, k, serr.metadata[k])
	}

	logger.Error(serr.Error(), args...)
}

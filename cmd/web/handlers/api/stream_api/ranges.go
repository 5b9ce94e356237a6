package stream_api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errUnsatisfiable = errors.New("range not satisfiable")

// byteRange is a resolved [start, start+length) window of a resource.
type byteRange struct {
	start, length int64
}

func (r byteRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.start, r.start+r.length-1, size)
}

// parseRange resolves a single "bytes=" range against size. ok is false when
// the range should be ignored and the full body served: no range, a
// malformed one, or a multi-range request. Ranges starting past the end
// yield errUnsatisfiable.
func parseRange(spec string, size int64) (r byteRange, ok bool, err error) {
	spec = strings.TrimSpace(spec)
	rest, found := strings.CutPrefix(spec, "bytes=")
	if !found || strings.Contains(rest, ",") {
		return byteRange{}, false, nil
	}
	first, last, found := strings.Cut(strings.TrimSpace(rest), "-")
	if !found {
		return byteRange{}, false, nil
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// suffix: the last n bytes
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return byteRange{}, false, nil
		}
		if n == 0 || size == 0 {
			return byteRange{}, false, errUnsatisfiable
		}
		n = min(n, size)
		return byteRange{start: size - n, length: n}, true, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, false, nil
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return byteRange{}, false, nil
		}
	}
	if start >= size {
		return byteRange{}, false, errUnsatisfiable
	}
	end = min(end, size-1)
	return byteRange{start: start, length: end - start + 1}, true, nil
}

// rangeSpec returns the requested range from the Range header or, for
// clients that cannot set headers, the range query parameter. The query
// form may omit the "bytes=" unit.
func rangeSpec(header, query string) string {
	if header != "" {
		return header
	}
	if query == "" || strings.HasPrefix(query, "bytes=") {
		return query
	}
	return "bytes=" + query
}

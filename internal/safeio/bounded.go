package safeio

import (
	"fmt"
	"io"

	"github.com/vscan/vscan/internal/vscanerr"
)

// chunkSize is the read buffer size used by BoundedRead to stream input
// instead of allocating max_bytes up front.
const chunkSize = 32 * 1024

// BoundedRead streams reader in chunks and aborts as soon as the total
// exceeds max_bytes, so a hostile manifest or remote response cannot
// exhaust memory. It returns vscanerr.InvalidInput on overflow.
func BoundedRead(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return nil, vscanerr.New(vscanerr.InvalidInput, fmt.Errorf("max_bytes must be positive"))
	}

	limited := io.LimitReader(reader, maxBytes+1)
	buf := make([]byte, 0, minInt64(maxBytes, 1<<20))
	chunk := make([]byte, chunkSize)

	for {
		n, err := limited.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if int64(len(buf)) > maxBytes {
				return nil, vscanerr.New(vscanerr.InvalidInput,
					fmt.Errorf("input exceeds the %d byte ceiling", maxBytes))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading bounded input: %w", err)
		}
	}
	return buf, nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

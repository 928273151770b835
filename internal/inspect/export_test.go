package inspect

import (
	"encoding/gob"
	"io"
)

func encodeHeader(w io.Writer, h snapshotHeader) error {
	return gob.NewEncoder(w).Encode(h)
}

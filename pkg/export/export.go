package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/dspfactory/core/catalog"
)

// WriteJSON writes the catalog entries to w as an indented JSON array.
func WriteJSON(w io.Writer, entries []catalog.Entry) error {
	if entries == nil {
		entries = []catalog.Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// WriteCSV writes one row per entry. Libraries are joined with ';' in load
// order.
func WriteCSV(w io.Writer, entries []catalog.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sha_key", "name", "backend", "libraries", "key", "size", "binary", "small", "stored_at"}); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.SHAKey,
			e.Name,
			e.Backend,
			strings.Join(e.Libraries, ";"),
			e.Key,
			strconv.FormatInt(e.Size, 10),
			strconv.FormatBool(e.Binary),
			strconv.FormatBool(e.Small),
			e.StoredAt.UTC().Format(time.RFC3339Nano),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

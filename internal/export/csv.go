package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/MikeSquared-Agency/recruiter/internal/store"
)

// Write serializes results as CSV. The header row is always written.
func Write(w io.Writer, results []store.Result) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		if err := cw.Write(Normalize(r).Values()); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

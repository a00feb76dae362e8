package stress

import (
	"fmt"
	"io"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// Output formats understood by Report.Write.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Report summarizes a stress run.
type Report struct {
	Pool     string        `json:"pool"`
	Capacity uint32        `json:"capacity"`
	Workers  int           `json:"workers"`
	Seed     int64         `json:"seed"`
	Elapsed  time.Duration `json:"elapsed_ns"`

	Operations     uint64 `json:"operations"`
	Allocations    uint64 `json:"allocations"`
	Frees          uint64 `json:"frees"`
	Exhausted      uint64 `json:"exhausted"`
	DoubleHandOuts uint64 `json:"double_hand_outs"`
	Validations    uint64 `json:"validations"`
	MaxUsed        uint32 `json:"max_used"`

	OpsPerSec       float64       `json:"ops_per_sec"`
	AllocateP50     time.Duration `json:"allocate_p50_ns"`
	AllocateP99     time.Duration `json:"allocate_p99_ns"`
	InvariantErrors []string      `json:"invariant_errors,omitempty"`

	Stats     pool.Stats     `json:"stats"`
	Resources *ResourceUsage `json:"resources,omitempty"`
}

// OK reports whether the run observed no double hand-out and no broken
// invariant.
func (r *Report) OK() bool {
	return r.DoubleHandOuts == 0 && len(r.InvariantErrors) == 0
}

// JSON encodes the report.
func (r *Report) JSON() ([]byte, error) {
	return gojson.MarshalIndent(r, "", "  ")
}

// Write renders the report to w in the given format.
func (r *Report) Write(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		data, err := r.JSON()
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode report")
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case FormatText, "":
		return r.writeText(w)
	default:
		return errors.Newf(errors.ErrorTypeValidation, "unknown report format %q", format)
	}
}

func (r *Report) writeText(w io.Writer) error {
	var b strings.Builder
	status := "PASS"
	if !r.OK() {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "stress %s: pool=%s capacity=%d workers=%d seed=%d elapsed=%s\n",
		status, r.Pool, r.Capacity, r.Workers, r.Seed, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "  operations     %d (%.0f ops/s)\n", r.Operations, r.OpsPerSec)
	fmt.Fprintf(&b, "  allocations    %d (exhausted %d)\n", r.Allocations, r.Exhausted)
	fmt.Fprintf(&b, "  frees          %d\n", r.Frees)
	fmt.Fprintf(&b, "  max used       %d\n", r.MaxUsed)
	fmt.Fprintf(&b, "  validations    %d\n", r.Validations)
	fmt.Fprintf(&b, "  allocate p50   %s  p99 %s\n", r.AllocateP50, r.AllocateP99)
	fmt.Fprintf(&b, "  double hand-outs %d\n", r.DoubleHandOuts)
	for _, e := range r.InvariantErrors {
		fmt.Fprintf(&b, "  invariant: %s\n", e)
	}
	if r.Resources != nil {
		fmt.Fprintf(&b, "  cpu %.1f%%  rss %d MiB  goroutines %d\n",
			r.Resources.CPUPercent, r.Resources.MemoryRSS>>20, r.Resources.GoroutineCount)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
